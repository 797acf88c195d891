/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"context"
	"regexp"
	"sort"

	log "github.com/cihub/seelog"
	"github.com/pkg/errors"

	"infini.sh/migrate/elastic"
)

// IndexDescriptor is one candidate index discovered on a cluster, rebuilt
// fresh on every enumeration
type IndexDescriptor struct {
	Name      string
	DocsCount int64
	StoreSize string
}

// SystemIndexFilter classifies index names. A leading dot always means
// system, operators extend the exclusion with regular expressions to cover
// engine internals that do not carry a dot, security or alerting indices
// for example.
type SystemIndexFilter struct {
	patterns []*regexp.Regexp
}

func NewSystemIndexFilter(patterns []string) (*SystemIndexFilter, error) {
	f := &SystemIndexFilter{}
	for _, p := range patterns {
		r, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid exclude pattern [%v]", p)
		}
		f.patterns = append(f.patterns, r)
	}
	return f, nil
}

// IsSystem reports whether the name is excluded from migration
func (f *SystemIndexFilter) IsSystem(name string) bool {
	if len(name) > 0 && name[0] == '.' {
		return true
	}
	for _, p := range f.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// ListBusinessIndices enumerates the cluster and keeps only business
// indices, sorted by name so downstream iteration is deterministic
func ListBusinessIndices(ctx context.Context, api *elastic.API, filter *SystemIndexFilter) ([]IndexDescriptor, error) {
	infos, err := api.GetIndices(ctx, "")
	if err != nil {
		if errors.Is(err, elastic.ErrAccessDenied) {
			return nil, errors.Wrapf(ErrAuth, "cluster [%v]", api.Config.Name)
		}
		return nil, errors.Wrapf(ErrConnectivity, "cluster [%v]: %v", api.Config.Name, err)
	}

	indices := []IndexDescriptor{}
	for name, info := range infos {
		if filter.IsSystem(name) {
			log.Debugf("skip system index [%v]", name)
			continue
		}
		indices = append(indices, IndexDescriptor{
			Name:      name,
			DocsCount: info.DocsCount,
			StoreSize: info.StoreSize,
		})
	}

	sort.Slice(indices, func(i, j int) bool {
		return indices[i].Name < indices[j].Name
	})

	return indices, nil
}
