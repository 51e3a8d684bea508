package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicReplace_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicReplace(dir, "0000000.png", []byte("hello")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// 覆盖写。
	if err := WriteFileAtomicReplace(dir, "0000000.png", []byte("world")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "0000000.png"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "world" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".0000000.png.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomicReplace_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	if err := WriteFileAtomicReplace(dir, "a.png", []byte("hello")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rename 失败后目录应为空，实际 %d 个条目", len(entries))
	}
}

func TestEnsureDir(t *testing.T) {
	root := t.TempDir()

	dir := filepath.Join(root, "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("期望创建目录：fi=%v err=%v", fi, err)
	}
	// 已存在：幂等。
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	file := filepath.Join(root, "f")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
	err := EnsureDir(file)
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestClearFiles_OnlyMatchingExt(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0000000.png", "0000090.PNG", "notes.txt", "0000180.bmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("写入文件失败：%v", err)
		}
	}
	// 子目录即使名字像 slide 也不动。
	if err := os.Mkdir(filepath.Join(dir, "0000270.png"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	n, err := ClearFiles(dir, ".png")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if n != 2 {
		t.Fatalf("期望删除 2 个文件，实际 %d", n)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	left := map[string]bool{}
	for _, e := range entries {
		left[e.Name()] = true
	}
	for _, want := range []string{"notes.txt", "0000180.bmp", "0000270.png"} {
		if !left[want] {
			t.Fatalf("不应删除 %q；剩余=%v", want, left)
		}
	}
}

func TestClearFiles_MissingDirIsNotError(t *testing.T) {
	n, err := ClearFiles(filepath.Join(t.TempDir(), "missing"), ".png")
	if err != nil || n != 0 {
		t.Fatalf("期望 (0, nil)，实际 (%d, %v)", n, err)
	}
}
