package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateConfiguration registers a build configuration.
func (s *Store) CreateConfiguration(ctx context.Context, cfg BuildConfiguration) (BuildConfiguration, error) {
	if cfg.ID == "" || cfg.ExternalID == "" || cfg.Name == "" {
		return BuildConfiguration{}, errors.New("id, external_id and name are required")
	}

	err := s.db.QueryRowContext(ctx, `
INSERT INTO build_configurations (id, external_id, name, project_name)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at
`, cfg.ID, cfg.ExternalID, cfg.Name, cfg.ProjectName).Scan(&cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return BuildConfiguration{}, fmt.Errorf("%w: configuration %s", ErrDuplicate, cfg.ExternalID)
		}
		return BuildConfiguration{}, err
	}
	return cfg, nil
}

// GetConfigurationByExternalID returns a configuration by its external identifier.
func (s *Store) GetConfigurationByExternalID(ctx context.Context, externalID string) (BuildConfiguration, error) {
	var cfg BuildConfiguration
	err := s.db.QueryRowContext(ctx, `
SELECT id, external_id, name, project_name, created_at, updated_at
FROM build_configurations
WHERE external_id = $1
`, externalID).Scan(&cfg.ID, &cfg.ExternalID, &cfg.Name, &cfg.ProjectName, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BuildConfiguration{}, fmt.Errorf("%w: configuration %s", ErrNotFound, externalID)
		}
		return BuildConfiguration{}, err
	}
	return cfg, nil
}

// ListConfigurations returns all configurations ordered by external id.
func (s *Store) ListConfigurations(ctx context.Context) ([]BuildConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, external_id, name, project_name, created_at, updated_at
FROM build_configurations
ORDER BY external_id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigurations(rows)
}

// RecordDependency declares that configurationID depends on dependsOnID. Re-recording an edge
// only updates its position.
func (s *Store) RecordDependency(ctx context.Context, dep Dependency) error {
	if dep.ConfigurationID == "" || dep.DependsOnID == "" {
		return errors.New("configuration and dependency ids required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO build_dependencies (configuration_id, depends_on_id, position)
VALUES ($1, $2, $3)
ON CONFLICT (configuration_id, depends_on_id) DO UPDATE SET position = EXCLUDED.position
`, dep.ConfigurationID, dep.DependsOnID, dep.Position)
	return err
}

// ListDependencies returns the configurations configurationID depends on, in declaration order.
func (s *Store) ListDependencies(ctx context.Context, configurationID string) ([]BuildConfiguration, error) {
	if configurationID == "" {
		return nil, errors.New("configuration id required")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.external_id, c.name, c.project_name, c.created_at, c.updated_at
FROM build_dependencies d
JOIN build_configurations c ON c.id = d.depends_on_id
WHERE d.configuration_id = $1
ORDER BY d.position ASC, c.id ASC
`, configurationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigurations(rows)
}

func scanConfigurations(rows *sql.Rows) ([]BuildConfiguration, error) {
	var configs []BuildConfiguration
	for rows.Next() {
		var cfg BuildConfiguration
		if err := rows.Scan(&cfg.ID, &cfg.ExternalID, &cfg.Name, &cfg.ProjectName, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}
