package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"cipherchat/internal/directory"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendStatic = "static"
	BackendMongo  = "mongo"
)

type (
	Server struct {
		Listen    string    `toml:"listen"`
		History   History   `toml:"history"`
		Directory Directory `toml:"directory"`
	}

	History struct {
		Backend   string `toml:"backend"`
		RedisAddr string `toml:"redis_addr"`
	}

	Directory struct {
		Backend       string `toml:"backend"`
		MongoURI      string `toml:"mongo_uri"`
		MongoDatabase string `toml:"mongo_database"`
		Seed          string `toml:"seed"`
		Users         []User `toml:"users"`
	}

	User struct {
		ID   string `toml:"id"`
		Name string `toml:"name"`
	}

	Client struct {
		RelayURL  string    `toml:"relay_url"`
		KeysURL   string    `toml:"keys_url"`
		AssistURL string    `toml:"assist_url"`
		Directory Directory `toml:"directory"`
	}
)

func DefaultServer() Server {
	return Server{
		Listen: "localhost:9090",
		History: History{
			Backend:   BackendMemory,
			RedisAddr: "localhost:6379",
		},
		Directory: defaultDirectory(),
	}
}

func DefaultClient() Client {
	return Client{
		RelayURL:  "ws://localhost:9090/ws",
		Directory: defaultDirectory(),
	}
}

func defaultDirectory() Directory {
	return Directory{
		Backend:       BackendStatic,
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "cipherchat",
		Seed:          "cipherchat-demo",
	}
}

// LoadServer reads a TOML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Server{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	switch cfg.History.Backend {
	case BackendMemory, BackendRedis:
	default:
		return Server{}, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
	switch cfg.Directory.Backend {
	case BackendStatic, BackendMongo:
	default:
		return Server{}, fmt.Errorf("unknown directory backend %q", cfg.Directory.Backend)
	}
	return cfg, nil
}

func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Client{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	if cfg.Directory.Backend != BackendStatic {
		return Client{}, fmt.Errorf("client directory backend must be %q", BackendStatic)
	}
	return cfg, nil
}

// StaticUsers converts configured users to the directory's form, falling
// back to the demo roster.
func (d Directory) StaticUsers() []directory.StaticUser {
	if len(d.Users) == 0 {
		return directory.DefaultUsers()
	}
	out := make([]directory.StaticUser, 0, len(d.Users))
	for _, u := range d.Users {
		out = append(out, directory.StaticUser{ID: u.ID, Name: u.Name})
	}
	return out
}
