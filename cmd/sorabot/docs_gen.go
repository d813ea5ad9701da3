package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"

	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/providers"
)

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	docsRoot := &cobra.Command{
		Use:    "docs",
		Short:  "Internal docs maintenance commands",
		Hidden: true,
	}

	var (
		outputDir string
		checkOnly bool
	)

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate reference docs from command and config source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outputDir) == "" {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated docs are out of date")

	docsRoot.AddCommand(gen)
	return docsRoot
}

// generateDocumentation renders every reference page in memory, then
// either writes them under outputDir or, with checkOnly, fails on the
// first page that differs from what is on disk.
func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	docs, err := renderReferences(rootFactory())
	if err != nil {
		return err
	}
	if checkOnly {
		return checkReferences(outputDir, docs)
	}

	if err := os.RemoveAll(filepath.Join(outputDir, cliDocsDir)); err != nil {
		return fmt.Errorf("clean cli docs: %w", err)
	}
	for _, rel := range sortedKeys(docs) {
		if err := writeTextFile(filepath.Join(outputDir, rel), docs[rel]); err != nil {
			return err
		}
	}
	return nil
}

var cliDocsDir = filepath.Join("reference", "cli")

// renderReferences maps each generated page's path, relative to the docs
// root, to its content.
func renderReferences(root *cobra.Command) (map[string]string, error) {
	docs := map[string]string{}
	if err := renderCommandDocs(root, docs); err != nil {
		return nil, err
	}

	configRef, err := buildConfigReferenceMarkdown()
	if err != nil {
		return nil, err
	}
	docs[filepath.Join("reference", "config.md")] = configRef

	providerRef, err := buildProvidersReferenceMarkdown()
	if err != nil {
		return nil, err
	}
	docs[filepath.Join("reference", "providers.md")] = providerRef
	return docs, nil
}

// renderCommandDocs writes one markdown page per visible command, named
// after its command path.
func renderCommandDocs(cmd *cobra.Command, docs map[string]string) error {
	if cmd.HasParent() && !cmd.IsAvailableCommand() {
		return nil
	}
	cmd.DisableAutoGenTag = true

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", cmd.CommandPath())
	if err := cobraDoc.GenMarkdownCustom(cmd, &buf, func(name string) string { return name }); err != nil {
		return fmt.Errorf("generate cli docs for %q: %w", cmd.CommandPath(), err)
	}
	name := strings.ReplaceAll(cmd.CommandPath(), " ", "_") + ".md"
	docs[filepath.Join(cliDocsDir, name)] = buf.String()

	for _, child := range cmd.Commands() {
		if err := renderCommandDocs(child, docs); err != nil {
			return err
		}
	}
	return nil
}

func checkReferences(outputDir string, docs map[string]string) error {
	for _, rel := range sortedKeys(docs) {
		got, err := os.ReadFile(filepath.Join(outputDir, rel))
		if err != nil {
			return fmt.Errorf("docs out of date: missing %s", rel)
		}
		if string(got) != docs[rel] {
			return fmt.Errorf("docs out of date: %s differs; run `sorabot docs generate`", rel)
		}
	}

	entries, err := os.ReadDir(filepath.Join(outputDir, cliDocsDir))
	if err != nil {
		return fmt.Errorf("read cli docs: %w", err)
	}
	for _, e := range entries {
		rel := filepath.Join(cliDocsDir, e.Name())
		if _, ok := docs[rel]; !ok {
			return fmt.Errorf("docs out of date: %s is no longer generated", rel)
		}
	}
	return nil
}

func writeTextFile(path string, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type configFieldRow struct {
	Path    string
	Type    string
	Env     string
	Default string
}

func buildConfigReferenceMarkdown() (string, error) {
	defaults, err := flattenConfigDefaults()
	if err != nil {
		return "", err
	}

	rows := []configFieldRow{}
	collectConfigRows(reflect.TypeOf((*config.Config)(nil)).Elem(), "", "", defaults, &rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })

	var b strings.Builder
	b.WriteString("# Config Reference\n\n")
	b.WriteString("Generated from `pkg/config/config.go` and `config.DefaultConfig()`.\n\n")
	b.WriteString("Environment variables override the file; a `.env` file in the working directory is loaded first.\n\n")
	writeRows(&b, rows)
	return b.String(), nil
}

func writeRows(b *strings.Builder, rows []configFieldRow) {
	b.WriteString("| Key | Type | Env Var | Default |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, row := range rows {
		b.WriteString("| `" + escapePipes(row.Path) + "` | `" + escapePipes(row.Type) + "` | `" + escapePipes(valueOr(row.Env, "-")) + "` | `" + escapePipes(valueOr(row.Default, "-")) + "` |\n")
	}
}

// collectConfigRows walks exported JSON fields. envPrefix tags on nested
// structs are prepended to the nested env names.
func collectConfigRows(t reflect.Type, prefix, envPrefix string, defaults map[string]string, rows *[]configFieldRow) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		jsonTag := strings.TrimSpace(strings.Split(f.Tag.Get("json"), ",")[0])
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		path := jsonTag
		if prefix != "" {
			path = prefix + "." + jsonTag
		}

		if f.Type.Kind() == reflect.Struct {
			collectConfigRows(f.Type, path, envPrefix+f.Tag.Get("envPrefix"), defaults, rows)
			continue
		}

		envName := strings.TrimSpace(f.Tag.Get("env"))
		if envName != "" {
			envName = envPrefix + envName
		}
		*rows = append(*rows, configFieldRow{
			Path:    path,
			Type:    friendlyType(f.Type),
			Env:     envName,
			Default: defaults[path],
		})
	}
}

func flattenConfigDefaults() (map[string]string, error) {
	data, err := json.Marshal(config.DefaultConfig())
	if err != nil {
		return nil, err
	}
	var root map[string]interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	out := map[string]string{}
	flattenMapValues("", root, out)
	return out, nil
}

func flattenMapValues(prefix string, v interface{}, out map[string]string) {
	typed, ok := v.(map[string]interface{})
	if !ok {
		encoded, _ := json.Marshal(v)
		out[prefix] = string(encoded)
		return
	}
	for k, child := range typed {
		next := k
		if prefix != "" {
			next = prefix + "." + k
		}
		flattenMapValues(next, child, out)
	}
}

func friendlyType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice:
		return "array<" + friendlyType(t.Elem()) + ">"
	case reflect.Map:
		return "map<" + friendlyType(t.Key()) + "," + friendlyType(t.Elem()) + ">"
	case reflect.Pointer:
		return "*" + friendlyType(t.Elem())
	default:
		return t.String()
	}
}

var providerSummaries = map[string]string{
	providers.ProviderGemini:     "Google Gemini through the genai SDK. Keeps a server-side chat per customer.",
	providers.ProviderOpenAI:     "OpenAI chat completions. Sends the recent history with every turn.",
	providers.ProviderOpenRouter: "OpenRouter through its OpenAI-compatible chat completions API.",
}

func buildProvidersReferenceMarkdown() (string, error) {
	defaults, err := flattenConfigDefaults()
	if err != nil {
		return "", err
	}

	cfgType := reflect.TypeOf(config.ProvidersConfig{})
	providerFields := map[string]reflect.StructField{}
	for i := 0; i < cfgType.NumField(); i++ {
		f := cfgType.Field(i)
		key := strings.TrimSpace(strings.Split(f.Tag.Get("json"), ",")[0])
		if key == "" || key == "-" || f.Type.Kind() != reflect.Struct {
			continue
		}
		providerFields[key] = f
	}

	supported := providers.SupportedProviders()
	sort.Strings(supported)

	var b strings.Builder
	b.WriteString("# Provider Reference\n\n")
	b.WriteString("Generated from provider factories and config structs.\n\n")
	b.WriteString("Select one with `providers.provider`. When it cannot be built the attendant still runs and answers with the fixed technical-difficulty text.\n\n")
	b.WriteString("## Supported Providers\n\n")
	for _, name := range supported {
		b.WriteString("- `" + name + "`\n")
	}
	b.WriteString("\n")

	for _, name := range supported {
		field, ok := providerFields[name]
		if !ok {
			continue
		}
		configKey := "providers." + name
		b.WriteString("## `" + name + "`\n\n")
		if summary := providerSummaries[name]; summary != "" {
			b.WriteString(summary + "\n\n")
		}
		b.WriteString("- Config path: `" + configKey + "`\n\n")

		rows := []configFieldRow{}
		collectConfigRows(field.Type, configKey, field.Tag.Get("envPrefix"), defaults, &rows)
		sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
		writeRows(&b, rows)
		b.WriteString("\n")
	}

	return b.String(), nil
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
