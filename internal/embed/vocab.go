package embed

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Vocabulary maps gene names to the transformer backend's pretrained token
// space. Loaded once at startup from the model directory:
//
//	{model_dir}/transformer/gene_info_table.csv  (gene_name,ensembl_id,gene_type)
//	{model_dir}/transformer/token_ids.txt        (one tokenized ensembl id per line)
type Vocabulary struct {
	ensemblByName map[string]string
	typeByName    map[string]string
	tokens        map[string]bool
}

// LoadVocabulary reads the vocabulary files under modelDir.
func LoadVocabulary(modelDir string) (*Vocabulary, error) {
	base := filepath.Join(modelDir, "transformer")

	v := &Vocabulary{
		ensemblByName: make(map[string]string),
		typeByName:    make(map[string]string),
		tokens:        make(map[string]bool),
	}

	if err := v.loadGeneInfo(filepath.Join(base, "gene_info_table.csv")); err != nil {
		return nil, err
	}
	if err := v.loadTokens(filepath.Join(base, "token_ids.txt")); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vocabulary) loadGeneInfo(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open gene info table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read gene info header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"gene_name", "ensembl_id", "gene_type"} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("gene info table missing column %q", required)
		}
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read gene info row: %w", err)
		}
		name := rec[col["gene_name"]]
		v.ensemblByName[name] = rec[col["ensembl_id"]]
		v.typeByName[name] = rec[col["gene_type"]]
	}
	return nil
}

func (v *Vocabulary) loadTokens(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		tok := strings.TrimSpace(sc.Text())
		if tok != "" {
			v.tokens[tok] = true
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	return nil
}

// Covers reports whether a dataset gene is usable by the pretrained model:
// either a known gene name whose ensembl id was tokenized, or a raw
// ENSG-prefixed id that was tokenized directly.
func (v *Vocabulary) Covers(gene string) bool {
	if id, ok := v.ensemblByName[gene]; ok && v.tokens[id] {
		return true
	}
	return strings.HasPrefix(gene, "ENSG") && v.tokens[gene]
}

// EnsemblID resolves a covered gene to its ensembl id.
func (v *Vocabulary) EnsemblID(gene string) string {
	if id, ok := v.ensemblByName[gene]; ok {
		return id
	}
	return gene
}
