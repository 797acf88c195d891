/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package util

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

func ContainStr(s, substr string) bool {
	return strings.Index(s, substr) != -1
}

func SubString(str string, begin, length int) string {
	lth := len(str)
	if begin < 0 {
		begin = 0
	}
	if begin >= lth {
		begin = lth
	}
	end := begin + length
	if end > lth {
		end = lth
	}
	return str[begin:end]
}

func ToInt(str string) (int, error) {
	return strconv.Atoi(str)
}

func ToInt64(str string) (int64, error) {
	return strconv.ParseInt(str, 10, 64)
}

func IntToString(num int) string {
	return strconv.Itoa(num)
}

func UrlEncode(str string) string {
	return url.QueryEscape(str)
}

// VersionCompare returns -1, 0, 1 while v1 <, =, > v2, -2 on parse failure
func VersionCompare(v1, v2 string) (int, error) {
	version1, err := version.NewVersion(v1)
	if err != nil {
		return -2, err
	}
	version2, err := version.NewVersion(v2)
	if err != nil {
		return -2, err
	}
	return version1.Compare(version2), nil
}
