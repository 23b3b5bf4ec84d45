package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InitProjectConfigScaffold writes ./.ayudapo/config.json with defaults unless it already exists.
// Secrets are left empty so the file can be committed.
func InitProjectConfigScaffold(projectDir string) (string, error) {
	if strings.TrimSpace(projectDir) == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get current working directory: %w", err)
		}
		projectDir = cwd
	}

	dir := filepath.Join(projectDir, ".ayudapo")
	path := filepath.Join(dir, "config.json")

	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("project config path is a directory: %s", path)
		}
		return path, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat project config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir .ayudapo: %w", err)
	}

	cfg := Default()
	cfg.Auth.Users = map[string]string{}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write project config: %w", err)
	}
	return path, nil
}

// WriteProviderModel persists provider.model into ./.ayudapo/config.json, keeping other keys.
func WriteProviderModel(projectDir, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model is empty")
	}
	return updateProjectConfig(projectDir, func(root map[string]any) {
		section, _ := root["provider"].(map[string]any)
		if section == nil {
			section = make(map[string]any)
		}
		section["model"] = model
		root["provider"] = section
	})
}

// WriteAuthUser stores a bcrypt hash under auth.users[name].
func WriteAuthUser(projectDir, name, hash string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("user name is empty")
	}
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return updateProjectConfig(projectDir, func(root map[string]any) {
		section, _ := root["auth"].(map[string]any)
		if section == nil {
			section = make(map[string]any)
		}
		users, _ := section["users"].(map[string]any)
		if users == nil {
			users = make(map[string]any)
		}
		users[name] = hash
		section["users"] = users
		root["auth"] = section
	})
}

func updateProjectConfig(projectDir string, mutate func(map[string]any)) error {
	dir := filepath.Join(strings.TrimSpace(projectDir), ".ayudapo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir .ayudapo: %w", err)
	}
	path := filepath.Join(dir, "config.json")
	var root map[string]any
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(stripJSONComments(data), &root); err != nil {
			root = nil
		}
	}
	if root == nil {
		root = make(map[string]any)
	}
	mutate(root)
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
