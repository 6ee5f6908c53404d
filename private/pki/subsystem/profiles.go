// Copyright 2025 The pki-server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package subsystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/pki/profile"
	"github.com/pkitools/pki-server/private/pki/repository"
)

// DefaultProfileFolder is the folder ImportProfiles reads by default.
const DefaultProfileFolder = "/usr/share/pki/ca/profiles/ca"

var profileExts = map[string]bool{".cfg": true, ".profile": true}

// ImportProfiles imports every *.cfg and *.profile file in folder into the
// repository, replacing profiles with the same ID. Unless asCurrentUser is
// set, the repository is handed over to the instance user afterwards.
func (s *Subsystem) ImportProfiles(ctx context.Context, folder string, asCurrentUser bool) error {
	logger := log.FromCtx(ctx)
	entries, err := os.ReadDir(folder)
	if err != nil {
		return serrors.Wrap("reading profile folder", err, "folder", folder)
	}
	err = s.withRepository(ctx, func(ctx context.Context, repo *repository.DB) error {
		imported := 0
		for _, e := range entries {
			if e.IsDir() || !profileExts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			file := filepath.Join(folder, e.Name())
			p, err := profile.Load(file)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return serrors.Wrap("reading profile", err, "file", file)
			}
			err = repo.PutProfile(ctx, repository.Profile{
				ID:      p.ID,
				Config:  string(raw),
				Enabled: p.Enabled,
			})
			if err != nil {
				return err
			}
			logger.Info("Imported profile", "id", p.ID, "file", file)
			imported++
		}
		logger.Info("Imported profiles", "count", imported, "folder", folder)
		return nil
	})
	if err != nil {
		return err
	}
	if asCurrentUser || s.owner == nil {
		return nil
	}
	for _, path := range []string{filepath.Dir(s.RepositoryPath()), s.RepositoryPath()} {
		if err := s.owner.Chown(path); err != nil {
			return serrors.Wrap("changing repository owner", err, "path", path)
		}
	}
	return nil
}
