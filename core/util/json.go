/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package util

import (
	log "github.com/cihub/seelog"
	"github.com/segmentio/encoding/json"
)

// MustToJSONBytes convert interface to json with byte array
func MustToJSONBytes(v interface{}) []byte {
	b, err := ToJSONBytes(v)
	if err != nil {
		panic(err)
	}
	return b
}

func ToJSONBytes(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// MustFromJSONBytes simply do json unmarshal
func MustFromJSONBytes(b []byte, v interface{}) {
	err := FromJSONBytes(b, v)
	if err != nil {
		log.Error("data:", string(b))
		panic(err)
	}
}

func FromJSONBytes(b []byte, v interface{}) (err error) {
	if len(b) == 0 {
		return
	}
	return json.Unmarshal(b, v)
}
