package db

import (
	_ "embed"
	"errors"

	"github.com/pysugar/service-interactor/internal/db/models"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

const scopeCatalogueKey = "scope_catalogue_loaded"

//go:embed fixtures/scopes.yaml
var scopeCatalogueYAML []byte

type scopeFixture struct {
	Scopes []models.Scope `yaml:"scopes"`
}

// ScopeCatalogue returns the embedded seed scopes.
func ScopeCatalogue() ([]models.Scope, error) {
	var f scopeFixture
	if err := yaml.Unmarshal(scopeCatalogueYAML, &f); err != nil {
		return nil, err
	}
	for i := range f.Scopes {
		if f.Scopes[i].AccessType == "" {
			f.Scopes[i].AccessType = models.AccessTypeDefault
		}
	}
	return f.Scopes, nil
}

// ensureScopeCatalogue seeds the scope catalogue unless it was loaded before.
// Scopes already present (e.g. observed dynamically) are left untouched.
func ensureScopeCatalogue(db *gorm.DB) (int, error) {
	var marker models.Setting
	err := db.Where("key = ?", scopeCatalogueKey).First(&marker).Error
	if err == nil {
		return 0, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	scopes, err := ScopeCatalogue()
	if err != nil {
		return 0, err
	}

	created := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, s := range scopes {
			scope := s
			res := tx.Where(models.Scope{Provider: s.Provider, Name: s.Name}).
				Attrs(models.Scope{Required: s.Required, GrantsAccess: s.GrantsAccess, AccessType: s.AccessType}).
				FirstOrCreate(&scope)
			if res.Error != nil {
				return res.Error
			}
			created += int(res.RowsAffected)
		}
		return tx.Create(&models.Setting{Key: scopeCatalogueKey, Value: "1"}).Error
	})
	return created, err
}
