package detections

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"strings"

	"github.com/samber/lo"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

const (
	LabelsCOCO           = "coco"
	LabelsCOCOWheelchair = "coco-wheelchair"
)

//go:embed labels/*.names
var labelFiles embed.FS

// LabelTable maps class ids to category names by position.
type LabelTable []string

// Resolve truncates a raw class id from model output and looks it up.
func (t LabelTable) Resolve(classID float64) (int, string) {
	if math.IsNaN(classID) || math.IsInf(classID, 0) {
		return models.NoClass, UnknownLabel
	}
	id := int(math.Trunc(classID))
	return id, t.Lookup(id)
}

func (t LabelTable) Lookup(id int) string {
	if id < 0 || id >= len(t) {
		return UnknownLabel
	}
	return t[id]
}

// IndexOf returns the class id of name, or models.NoClass.
func (t LabelTable) IndexOf(name string) int {
	return lo.IndexOf(t, name)
}

// ParseLabels reads one label per line, skipping blank lines.
func ParseLabels(r io.Reader) (LabelTable, error) {
	var table LabelTable
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		table = append(table, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("label table is empty")
	}
	return table, nil
}

func BuiltinLabels(name string) (LabelTable, error) {
	f, err := labelFiles.Open(path.Join("labels", name+".names"))
	if err != nil {
		return nil, fmt.Errorf("unknown label table %q", name)
	}
	defer f.Close()
	return ParseLabels(f)
}

// LoadLabels accepts a builtin table name or a path to a .names file.
func LoadLabels(nameOrPath string) (LabelTable, error) {
	if table, err := BuiltinLabels(nameOrPath); err == nil {
		return table, nil
	}

	f, err := os.Open(nameOrPath)
	if err != nil {
		return nil, fmt.Errorf("open label file: %w", err)
	}
	defer f.Close()
	return ParseLabels(f)
}
