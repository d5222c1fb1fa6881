// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

func hookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		switch t {
		case reflect.TypeOf(Octal(0)):
			return strconv.ParseInt(s, 8, 32)
		case reflect.TypeOf(LogSeverity("")):
			level := strings.ToUpper(s)
			if !slices.Contains(validSeverities(), level) {
				return nil, fmt.Errorf("invalid log severity: %s", s)
			}
			return level, nil
		default:
			return data, nil
		}
	}
}

func validSeverities() []string {
	out := make([]string, 0, len(severityRanking))
	for k := range severityRanking {
		out = append(out, string(k))
	}
	return out
}

func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		hookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
