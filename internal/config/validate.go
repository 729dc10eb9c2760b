// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/vast-io/vast/internal/verrors"
)

// Validate checks instance against schema. A schema that fails to compile
// is a programmer error; an instance that fails validation is the user's.
func Validate(schema string, instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema does not compile: %v", err))
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("%w: %v", verrors.ParseError, err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", verrors.ParseError, err)
	}
	return nil
}
