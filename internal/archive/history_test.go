package archive

import (
	"strings"
	"testing"
)

func TestHistoricalName(t *testing.T) {
	name := HistoricalName("photos/x.jpg")

	if !strings.HasPrefix(name, "photos/.history.") {
		t.Errorf("историческое имя должно начинаться с photos/.history.: %s", name)
	}
	if !strings.HasSuffix(name, ".x.jpg") {
		t.Errorf("историческое имя должно заканчиваться на .x.jpg: %s", name)
	}
	if !IsHistorical(name) {
		t.Errorf("сгенерированное имя должно распознаваться как историческое: %s", name)
	}
}

func TestHistoricalName_TopLevel(t *testing.T) {
	name := HistoricalName("a.txt")
	if !strings.HasPrefix(name, ".history.") {
		t.Errorf("имя в корне bucket'а: %s", name)
	}
	if !strings.HasSuffix(name, ".a.txt") {
		t.Errorf("basename должен сохраняться: %s", name)
	}
}

func TestHistoricalName_Unique(t *testing.T) {
	a := HistoricalName("photos/x.jpg")
	b := HistoricalName("photos/x.jpg")
	if a == b {
		t.Errorf("два исторических имени совпали: %s", a)
	}
}

func TestHistoricalName_RandPart(t *testing.T) {
	name := HistoricalName("dir/f")
	base := strings.TrimPrefix(name, "dir/")
	// .history.<ms>.<rand10>.<basename>
	parts := strings.Split(base, ".")
	// ["", "history", "<ms>", "<rand>", "f"]
	if len(parts) != 5 {
		t.Fatalf("неожиданная структура имени: %s", base)
	}
	if len(parts[3]) != 10 {
		t.Errorf("случайная часть должна быть длиной 10: %q", parts[3])
	}
}

func TestIsHistorical(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"photos/.history.1712000000000.a1B2c3D4e5.x.jpg", true},
		{".history.1712000000000.a1B2c3D4e5.a.txt", true},
		{"photos/x.jpg", false},
		{"history.txt", false},
		{"photos/history.x.jpg", false},
		{".history.somewhere/x.jpg", false},
	}

	for _, tt := range tests {
		if got := IsHistorical(tt.path); got != tt.want {
			t.Errorf("IsHistorical(%q) = %v, ожидалось %v", tt.path, got, tt.want)
		}
	}
}
