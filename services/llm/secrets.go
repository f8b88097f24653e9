// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// secretsDir is where container secrets are mounted.
var secretsDir = "/run/secrets"

var memguardInitOnce sync.Once

// apiKey holds a provider key sealed in an encrypted memguard enclave. The
// plaintext only exists in locked memory for the duration of use.
type apiKey struct {
	enclave *memguard.Enclave
}

// loadAPIKey reads a key from envVar, falling back to the secret file of the
// same purpose, and seals it.
//
// # Inputs
//
//   - envVar: Environment variable name, e.g. OPENAI_API_KEY.
//   - secretName: File name under /run/secrets, e.g. openai_api_key.
//
// # Outputs
//
//   - *apiKey: The sealed key.
//   - error: Non-nil when neither source has a key.
func loadAPIKey(envVar, secretName string) (*apiKey, error) {
	memguardInitOnce.Do(memguard.CatchInterrupt)

	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		path := filepath.Join(secretsDir, secretName)
		if content, err := os.ReadFile(path); err == nil {
			value = strings.TrimSpace(string(content))
			slog.Info("Read API key from secret file", "path", path)
		}
	}
	if value == "" {
		return nil, fmt.Errorf("%s is missing", envVar)
	}
	return sealAPIKey(value), nil
}

func sealAPIKey(value string) *apiKey {
	return &apiKey{enclave: memguard.NewEnclave([]byte(value))}
}

// use opens the key for the duration of fn.
func (k *apiKey) use(fn func(key string) error) error {
	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("open api key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}
