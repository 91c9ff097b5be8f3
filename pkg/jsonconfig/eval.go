/*
Copyright 2026 The Scarlett Kernel Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package jsonconfig

import (
	"encoding/json"
	"fmt"
	"os"
)

// ReadFile decodes the JSON object at configPath into an Obj. Unlike
// the server config loader this was adapted from, it does not resolve
// "_include" directives or "_env"/"_file" substitutions — seed policy
// documents are single flat files. Call Validate on the result once
// every expected key has been consumed, to catch both missing required
// keys and unrecognized ones.
func ReadFile(configPath string) (Obj, error) {
	f, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m map[string]interface{}
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", configPath, err)
	}
	return Obj(m), nil
}
