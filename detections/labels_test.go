package detections

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

func TestBuiltinLabels(t *testing.T) {
	coco, err := BuiltinLabels(LabelsCOCO)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(coco), test.ShouldEqual, 80)
	test.That(t, coco[0], test.ShouldEqual, "person")
	test.That(t, coco.IndexOf("chair"), test.ShouldEqual, 56)

	wheel, err := BuiltinLabels(LabelsCOCOWheelchair)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(wheel), test.ShouldEqual, 81)
	test.That(t, wheel[80], test.ShouldEqual, "wheelchair")
	test.That(t, wheel[:80], test.ShouldResemble, coco)

	_, err = BuiltinLabels("nope")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoadLabelsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.names")
	test.That(t, os.WriteFile(path, []byte("ramp\n\n  door \nkerb\n"), 0o600), test.ShouldBeNil)

	table, err := LoadLabels(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, table, test.ShouldResemble, LabelTable{"ramp", "door", "kerb"})

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.names"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseLabelsEmpty(t *testing.T) {
	_, err := ParseLabels(strings.NewReader("\n \n"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestResolve(t *testing.T) {
	table := LabelTable{"a", "b"}

	id, label := table.Resolve(1.9)
	test.That(t, id, test.ShouldEqual, 1)
	test.That(t, label, test.ShouldEqual, "b")

	id, label = table.Resolve(-0.5)
	test.That(t, id, test.ShouldEqual, 0)
	test.That(t, label, test.ShouldEqual, "a")

	id, label = table.Resolve(math.NaN())
	test.That(t, id, test.ShouldEqual, models.NoClass)
	test.That(t, label, test.ShouldEqual, UnknownLabel)

	test.That(t, table.IndexOf("zzz"), test.ShouldEqual, models.NoClass)
}
