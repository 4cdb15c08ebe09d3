package builder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZenLiuCN/fn"
)

// CopyFile from src to dest with optional src file info
func CopyFile(src string, dest string, si fs.FileInfo) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer fn.IgnoreClose(sf)
	df, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer fn.IgnoreClose(df)
	_, err = io.Copy(df, sf)
	if err == nil {
		if si == nil {
			si, err = os.Stat(src)
			if err != nil {
				return
			}
		}
		err = os.Chmod(dest, si.Mode())
	}
	return
}

// CopyDir from src to dest with optional src file info
func CopyDir(src string, dest string, si fs.FileInfo) (err error) {
	if si == nil {
		if si, err = os.Stat(src); err != nil {
			return err
		}
	}
	if err = os.MkdirAll(dest, si.Mode()); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		dp := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(dp, info.Mode())
		}
		return CopyFile(path, dp, info)
	})
}

// Relink removes whatever exists at link and creates a fresh symbolic link to target.
func Relink(target, link string) (err error) {
	if _, err = os.Lstat(link); err == nil {
		if err = os.RemoveAll(link); err != nil {
			return fmt.Errorf("remove stale link %s: %w", link, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err = os.Symlink(target, link); err != nil {
		return fmt.Errorf("link %s to %s: %w", link, target, err)
	}
	return nil
}

// Sources lists the go files of the entry package that the artifact build tag selects.
func Sources(ctx context.Context, r Runner, goCmd, dir, entry string, env []string) (files []string, err error) {
	cmd := Command{
		Dir:  dir,
		Name: goCmd,
		Args: []string{"list", "-mod=mod", "-tags", BuildTag, "-f", `{{range .GoFiles}}{{$.Dir}}/{{.}}{{"\n"}}{{end}}`, entry},
		Env:  env,
	}
	var out []byte
	if out, err = r.Run(ctx, cmd); err != nil {
		return
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if f := strings.TrimSpace(sc.Text()); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no go sources in %s", entry)
	}
	return
}

// Imports generate import cfg of the entry package and its dependencies into file.
func Imports(ctx context.Context, r Runner, goCmd, dir, entry, file string, env []string) (err error) {
	cmd := Command{
		Dir:  dir,
		Name: goCmd,
		Args: []string{"list", "-mod=mod", "-tags", BuildTag, "-export", "-deps", "-f", "{{if .Export}}packagefile {{.ImportPath}}={{.Export}}{{end}}", entry},
		Env:  env,
	}
	var out []byte
	if out, err = r.Run(ctx, cmd); err != nil {
		return
	}
	return os.WriteFile(file, out, 0o644)
}

// Compile the sources into an object file of package main.
func Compile(ctx context.Context, r Runner, goCmd, dir, importcfg, output string, files []string, env []string) (err error) {
	cmd := Command{
		Dir:  dir,
		Name: goCmd,
		Args: append([]string{"tool", "compile", "-p", "main", "-importcfg", importcfg, "-o", output}, files...),
		Env:  env,
	}
	_, err = r.Run(ctx, cmd)
	return
}

// ShadowName of an artifact copy keyed by digest, keeping the extension.
func ShadowName(artifact, digest string) string {
	ext := filepath.Ext(artifact)
	base := strings.TrimSuffix(filepath.Base(artifact), ext)
	return fmt.Sprintf("%s-%s%s", base, digest, ext)
}
