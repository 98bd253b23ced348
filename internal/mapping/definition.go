package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"
)

// LoadDefinition reads a named schema definition from the definitions
// directory. The definition is the full index-creation document (settings
// plus mappings); its mappings sub-document is what Compile consumes once
// the index exists. A missing definition is a not-found error naming the
// mapping.
func LoadDefinition(dir, name string) (map[string]any, error) {
	path := filepath.Join(dir, filepath.Base(name)+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFound(fmt.Sprintf("mapping definition %q not found", name))
		}
		return nil, fmt.Errorf("read mapping definition %s: %w", name, err)
	}

	var definition map[string]any
	if err := json.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("parse mapping definition %s: %w", name, err)
	}
	return definition, nil
}
