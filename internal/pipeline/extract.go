package pipeline

import (
	"strings"

	"github.com/stepflow-dev/stepflow/pkg/domain"
)

// contactAliases maps each canonical contact field to the recognized key
// variants, resolved in order against free-form fields first, then
// answers. Kept in one table so the recognized variants stay auditable.
var contactAliases = map[string][]string{
	"email": {"email", "Email", "EMAIL", "e-mail", "mail"},
	"name":  {"name", "Name", "nome", "Nome", "fullName", "full_name", "firstName"},
	"phone": {"phone", "Phone", "telefone", "Telefone", "tel", "whatsapp", "celular"},
}

// lookupAlias resolves a canonical field against the maps, trying exact
// key variants first and a case-insensitive pass second.
func lookupAlias(canonical string, maps ...map[string]string) string {
	variants := contactAliases[canonical]
	for _, m := range maps {
		for _, key := range variants {
			if v, ok := m[key]; ok && v != "" {
				return v
			}
		}
	}
	for _, m := range maps {
		for k, v := range m {
			if v == "" {
				continue
			}
			for _, key := range variants {
				if strings.EqualFold(k, key) {
					return v
				}
			}
		}
	}
	return ""
}

// ExtractContact derives the visitor identity from free-form fields and
// answers using the alias table.
func ExtractContact(fields, answers map[string]string) domain.Contact {
	return domain.Contact{
		Name:  lookupAlias("name", fields, answers),
		Email: lookupAlias("email", fields, answers),
		Phone: lookupAlias("phone", fields, answers),
	}
}

// NormalizeEmail canonicalizes an email for dedup comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
