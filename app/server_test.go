package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLogFile(t *testing.T, lines int) string {
	t.Helper()
	var sb strings.Builder
	for i := 1; i <= lines; i++ {
		fmt.Fprintf(&sb, "line-%d\n", i)
	}
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadLastNLines(t *testing.T) {
	path := writeLogFile(t, 10)

	lines, err := ReadLastNLines(path, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 {
		t.Fatalf("应返回3行，实际 %d", len(lines))
	}
	// 顺序从最旧到最新
	want := []string{"line-8", "line-9", "line-10"}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("第%d行应为 %s，实际 %s", i, w, lines[i])
		}
	}
}

func TestReadLastNLinesShortFile(t *testing.T) {
	path := writeLogFile(t, 2)

	lines, err := ReadLastNLines(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Errorf("文件不足n行时应返回全部，实际 %d", len(lines))
	}
}
