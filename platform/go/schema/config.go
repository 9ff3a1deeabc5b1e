package schema

import (
	"fmt"
	"strings"
	"text/template"
)

// ConfigParams carries everything rendered into a tenant's config
// artifact. AuthKeys must contain one entry per key name the artifact
// declares.
type ConfigParams struct {
	Slug            string
	NamespacePrefix string
	BaseURL         string
	DatabaseHost    string
	DatabasePort    int
	DatabaseName    string
	DatabaseUser    string
	AuthKeys        map[string]string
	Debug           bool
}

const configTemplate = `# Managed by hostfleet. Do not edit.
TENANT_SLUG={{.Slug}}
TABLE_PREFIX={{.NamespacePrefix}}_
BASE_URL={{.BaseURL}}

DB_HOST={{.DatabaseHost}}
DB_PORT={{.DatabasePort}}
DB_NAME={{.DatabaseName}}
DB_USER={{.DatabaseUser}}

{{range .KeyNames}}{{.}}={{index $.AuthKeys .}}
{{end}}
DEBUG={{if .Debug}}true{{else}}false{{end}}
`

var configTmpl = template.Must(template.New("tenant.conf").Parse(configTemplate))

// RenderConfig produces the tenant config artifact body.
func RenderConfig(params ConfigParams, keyNames []string) (string, error) {
	if params.Slug == "" {
		return "", fmt.Errorf("render config: slug is required")
	}
	for _, name := range keyNames {
		if params.AuthKeys[name] == "" {
			return "", fmt.Errorf("render config: missing auth key %s", name)
		}
	}

	data := struct {
		ConfigParams
		KeyNames []string
	}{ConfigParams: params, KeyNames: keyNames}

	var sb strings.Builder
	if err := configTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return sb.String(), nil
}
