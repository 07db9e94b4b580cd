package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Profile holds the saved connection details. The password is never
// persisted; it comes from the environment or an interactive prompt.
type Profile struct {
	ServerURL string    `json:"server_url"`
	Username  string    `json:"username"`
	BasePath  string    `json:"base_path"`
	SavedAt   time.Time `json:"saved_at"`
}

// ProfilePath returns the default path for the profile file.
func ProfilePath() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "mdman", "profile.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mdman", "profile.json")
}

// SaveProfile writes the profile to the default location.
func SaveProfile(p *Profile) error {
	path := ProfilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadProfile reads the profile from the default location.
func LoadProfile() (*Profile, error) {
	data, err := os.ReadFile(ProfilePath())
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProfile removes the saved profile file.
func DeleteProfile() error {
	return os.Remove(ProfilePath())
}
