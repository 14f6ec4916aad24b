// Package translations loads the per-language message catalog of
// spec.md §6: a directory with one "keys" file (ordered message keys,
// one per line) and one file per configured language (values in the
// same order), composed into messages[key][lang].
package translations

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// Catalog maps a message key and language to localized text.
type Catalog map[string]map[string]string

// Load reads dir/keys plus dir/<lang> for each lang in langs and
// builds the catalog, autosuffixing two newlines per value as spec.md
// §6 requires.
func Load(dir string, langs []string) (Catalog, error) {
	keys, err := readLines(filepath.Join(dir, "keys"))
	if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}
	cat := make(Catalog, len(keys))
	for _, k := range keys {
		cat[k] = make(map[string]string)
	}
	for _, lang := range langs {
		values, err := readLines(filepath.Join(dir, lang))
		if err != nil {
			return nil, fmt.Errorf("read %s translation file: %w", lang, err)
		}
		for i, k := range keys {
			if i >= len(values) {
				break
			}
			cat[k][lang] = values[i] + "\n\n"
		}
	}
	return cat, nil
}

// Text returns the localized text for key/lang, falling back to the
// raw key if no translation is loaded.
func (c Catalog) Text(key, lang string) string {
	if byLang, ok := c[key]; ok {
		if v, ok := byLang[lang]; ok {
			return v
		}
	}
	return key
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}
