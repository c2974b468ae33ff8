package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func withEnv(k, v string, fn func()) {
	old, had := os.LookupEnv(k)
	_ = os.Setenv(k, v)
	defer func() {
		if had {
			_ = os.Setenv(k, old)
		} else {
			_ = os.Unsetenv(k)
		}
	}()
	fn()
}

func Test_firstNonEmpty(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"all empty", []string{"", "", ""}, ""},
		{"first non-empty", []string{"a", "b"}, "a"},
		{"later non-empty", []string{"", "b"}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := firstNonEmpty(tt.in...)
			if got != tt.want {
				t.Errorf("firstNonEmpty() got=%#v want=%#v", got, tt.want)
			}
		})
	}
}

func Test_getEnv(t *testing.T) {
	tests := []struct {
		name string
		setK string
		setV string
		key  string
		def  string
		want string
	}{
		{"no env uses default non-empty", "", "", "FOO", "bar", "bar"},
		{"env overrides", "FOO", "baz", "FOO", "bar", "baz"},
		{"default empty stays empty", "", "", "FOO", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setK != "" {
				withEnv(tt.setK, tt.setV, func() {
					got := getEnv(tt.key, tt.def)
					if got != tt.want {
						t.Errorf("getEnv() got=%#v want=%#v", got, tt.want)
					}
				})
				return
			}
			got := getEnv(tt.key, tt.def)
			if got != tt.want {
				t.Errorf("getEnv() got=%#v want=%#v", got, tt.want)
			}
		})
	}
}

func Test_getEnvInt(t *testing.T) {
	tests := []struct {
		name string
		set  string
		def  int
		want int
	}{
		{"no env -> default", "", 7, 7},
		{"valid int", "42", 7, 42},
		{"invalid int -> default", "abc", 9, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set == "" {
				_ = os.Unsetenv("XINT")
			} else {
				_ = os.Setenv("XINT", tt.set)
				defer os.Unsetenv("XINT")
			}
			got := getEnvInt("XINT", tt.def)
			if got != tt.want {
				t.Errorf("getEnvInt() got=%#v want=%#v", got, tt.want)
			}
		})
	}
}

func Test_getEnvBool(t *testing.T) {
	tests := []struct {
		name string
		set  string
		def  bool
		want bool
	}{
		{"no env -> default", "", true, true},
		{"true", "true", false, true},
		{"numeric", "1", false, true},
		{"false", "false", true, false},
		{"invalid -> default", "maybe", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set == "" {
				_ = os.Unsetenv("XBOOL")
			} else {
				_ = os.Setenv("XBOOL", tt.set)
				defer os.Unsetenv("XBOOL")
			}
			if got := getEnvBool("XBOOL", tt.def); got != tt.want {
				t.Errorf("getEnvBool() got=%#v want=%#v", got, tt.want)
			}
		})
	}
}

func Test_getEnvDuration(t *testing.T) {
	tests := []struct {
		name string
		set  string
		def  time.Duration
		want time.Duration
	}{
		{"no env -> default", "", time.Second, time.Second},
		{"go duration", "250ms", time.Second, 250 * time.Millisecond},
		{"bare millis", "1500", time.Second, 1500 * time.Millisecond},
		{"invalid -> default", "soon", 2 * time.Second, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set == "" {
				_ = os.Unsetenv("XDUR")
			} else {
				_ = os.Setenv("XDUR", tt.set)
				defer os.Unsetenv("XDUR")
			}
			if got := getEnvDuration("XDUR", tt.def); got != tt.want {
				t.Errorf("getEnvDuration() got=%#v want=%#v", got, tt.want)
			}
		})
	}
}

func Test_Config_Addrs(t *testing.T) {
	tests := []struct {
		name       string
		ws, status int
		wantWS     string
		wantStatus string
	}{
		{"default", 81, 665, "0.0.0.0:81", "0.0.0.0:665"},
		{"custom", 9000, 9090, "0.0.0.0:9000", "0.0.0.0:9090"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{WSPort: tt.ws, StatusPort: tt.status}
			if got := c.WSAddr(); got != tt.wantWS {
				t.Errorf("WSAddr() got=%#v want=%#v", got, tt.wantWS)
			}
			if got := c.StatusAddr(); got != tt.wantStatus {
				t.Errorf("StatusAddr() got=%#v want=%#v", got, tt.wantStatus)
			}
		})
	}
}

func Test_Config_Redacted(t *testing.T) {
	c := &Config{
		Name: "Relay", WSPort: 81, StatusPort: 665, LogLevel: "debug", LogDir: "/var/log/relay",
		GameProbeAddr: ":7777", BackendProbeAddr: ":3551",
		GameProbeInterval: 5 * time.Second, BackendProbeInterval: 10 * time.Second,
		BanCheckTimeout: 3 * time.Second, BanFailClosed: true, BanLookup: LookupRedis,
		MongoURI: "mongodb://user:secret@db:27017", UsersDB: "nexus", UsersCollection: "users",
		BansDB: "fortban", BansCollection: "bannedUsers",
		RedisAddr: "cache:6379", RedisPassword: "hunter2",
		WebhookURL: "https://discord.example/webhooks/1/token", NotifyTopic: "relay-events", AdminSubscription: "relay-admin-sub",
		GoogleProjectID: "pid", CredentialsFile: "creds.json",
	}
	got := c.Redacted()
	want := map[string]any{
		"name":                 "Relay",
		"wsPort":               81,
		"statusPort":           665,
		"logLevel":             "debug",
		"logDir":               "/var/log/relay",
		"gameProbeAddr":        ":7777",
		"backendProbeAddr":     ":3551",
		"gameProbeInterval":    "5s",
		"backendProbeInterval": "10s",
		"banCheckTimeout":      "3s",
		"banFailClosed":        true,
		"banLookup":            "redis",
		"mongoConfigured":      true,
		"usersCollection":      "nexus.users",
		"bansCollection":       "fortban.bannedUsers",
		"redisAddr":            "cache:6379",
		"webhookConfigured":    true,
		"notifyTopic":          "relay-events",
		"adminSubscription":    "relay-admin-sub",
		"projectID":            "pid",
		"credentialsProvided":  true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Redacted()\n got=%#v\nwant=%#v", got, want)
	}
}

func Test_Config_UsesPubsub(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"none", Config{}, false},
		{"notify topic", Config{NotifyTopic: "t"}, true},
		{"admin subscription", Config{AdminSubscription: "s"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.UsesPubsub(); got != tt.want {
				t.Errorf("UsesPubsub() got=%#v want=%#v", got, tt.want)
			}
		})
	}
}

func Test_projectIDFromCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")
	content := []byte(`{"project_id":"my-proj"}`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write temp creds: %#v", err)
	}
	pid, err := projectIDFromCredentials(path)
	if err != nil || pid != "my-proj" {
		t.Errorf("projectIDFromCredentials() pid=%#v err=%#v", pid, err)
	}

	// missing field returns empty id, no error
	if err := os.WriteFile(path, []byte(`{"nope":1}`), 0o600); err != nil {
		t.Fatalf("write temp creds: %#v", err)
	}
	pid2, err2 := projectIDFromCredentials(path)
	if err2 != nil || pid2 != "" {
		t.Errorf("projectIDFromCredentials(missing) pid=%#v err=%#v", pid2, err2)
	}

	// broken json is an error
	if err := os.WriteFile(path, []byte(`{`), 0o600); err != nil {
		t.Fatalf("write temp creds: %#v", err)
	}
	if _, err3 := projectIDFromCredentials(path); err3 == nil {
		t.Errorf("projectIDFromCredentials(broken) expected error")
	}
}

func Test_getGoogleProjectID(t *testing.T) {
	unset := func(keys ...string) {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
	}
	envKeys := []string{"GOOGLE_APPLICATION_CREDENTIALS", "RELAY_PUBSUB_PROJECT_ID", "GOOGLE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"}
	unset(envKeys...)
	defer unset(envKeys...)

	dir := t.TempDir()
	credFile := filepath.Join(dir, "creds.json")
	_ = os.WriteFile(credFile, []byte(`{"project_id":"file-proj"}`), 0o600)

	tests := []struct {
		name     string
		setEnv   map[string]string
		creds    string
		explicit string
		want     string
	}{
		{"from GOOGLE_APPLICATION_CREDENTIALS", map[string]string{"GOOGLE_APPLICATION_CREDENTIALS": credFile}, "", "", "file-proj"},
		{"from explicit RELAY_PUBSUB_PROJECT_ID", map[string]string{}, "", "explicit-proj", "explicit-proj"},
		{"from GOOGLE_PROJECT_ID", map[string]string{"GOOGLE_PROJECT_ID": "env-proj"}, "", "", "env-proj"},
		{"from common env", map[string]string{"GOOGLE_CLOUD_PROJECT": "common-proj"}, "", "", "common-proj"},
		{"from provided credsFile path", map[string]string{}, credFile, "", "file-proj"},
		{"none -> empty", map[string]string{}, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unset(envKeys...)
			for k, v := range tt.setEnv {
				_ = os.Setenv(k, v)
			}
			got := getGoogleProjectID(tt.creds, tt.explicit)
			if got != tt.want {
				t.Errorf("getGoogleProjectID() got=%#v want=%#v", got, tt.want)
			}
		})
	}
}

func Test_Load(t *testing.T) {
	unset := func(keys ...string) {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
	}
	keys := []string{"RELAY_WS_PORT", "RELAY_STATUS_PORT", "RELAY_LOG_LEVEL", "RELAY_GAME_PROBE_INTERVAL", "RELAY_BAN_FAIL_CLOSED", "RELAY_BAN_LOOKUP", "RELAY_WEBHOOK_URL", "RELAY_NOTIFY_TOPIC", "RELAY_ADMIN_SUBSCRIPTION", "GOOGLE_APPLICATION_CREDENTIALS", "RELAY_GSA_CREDENTIALS", "RELAY_PUBSUB_PROJECT_ID"}
	unset(keys...)
	defer unset(keys...)

	os.Setenv("RELAY_WS_PORT", "9001")
	os.Setenv("RELAY_STATUS_PORT", "9002")
	os.Setenv("RELAY_LOG_LEVEL", "warn")
	os.Setenv("RELAY_GAME_PROBE_INTERVAL", "2s")
	os.Setenv("RELAY_BAN_FAIL_CLOSED", "true")
	os.Setenv("RELAY_BAN_LOOKUP", "REDIS")
	os.Setenv("RELAY_NOTIFY_TOPIC", "relay-events")
	os.Setenv("RELAY_PUBSUB_PROJECT_ID", "proj")

	cfg := Load()
	if cfg == nil {
		t.Fatalf("Load() returned nil")
	}
	if cfg.WSPort != 9001 || cfg.StatusPort != 9002 || cfg.LogLevel != "warn" ||
		cfg.GameProbeInterval != 2*time.Second || cfg.BackendProbeInterval != 5*time.Second ||
		!cfg.BanFailClosed || cfg.BanLookup != LookupRedis ||
		cfg.NotifyTopic != "relay-events" || cfg.GoogleProjectID != "proj" ||
		cfg.GameProbeAddr != ":7777" || cfg.BansCollection != "bannedUsers" {
		b, _ := json.Marshal(cfg)
		t.Errorf("Load() unexpected cfg: %#v", string(b))
	}

	os.Setenv("RELAY_BAN_LOOKUP", "etcd")
	if got := Load().BanLookup; got != LookupMongo {
		t.Errorf("Load() unknown lookup got=%#v want=%#v", got, LookupMongo)
	}
}
