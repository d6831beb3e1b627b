package main

import (
	"log"

	"github.com/kelseyhightower/envconfig"
	"github.com/korylprince/agent-neo/auth"
	"github.com/korylprince/agent-neo/storage"
)

//Config represents options given in the environment
type Config struct {
	BackendAddress string //base URL of the chat endpoint; required
	RequestTimeout int    //in seconds; default: 0 (no timeout)
	TypingDelay    int    //in milliseconds per character; default: 15

	AuthMethod    string //"auth0" to require login; default: disabled
	AuthDomain    string //required for auth0
	AuthClientID  string //required for auth0
	AuthCallback  string //required for auth0
	AuthLogoutURL string //required for auth0
	AuthJWKSURL   string //id token signing keys; default: https://<AuthDomain>/.well-known/jwks.json

	StorageDriver string //"memory" or "mysql"; default: memory
	StorageDSN    string //required for mysql
	StorageKey    string //64 hex characters; encrypts stored values if set

	ListenAddr string //addr format used for net.Dial; required
	Prefix     string //url prefix to mount api to without trailing slash

	Debug bool
}

var config = &Config{}

func checkEmpty(val, name string) {
	if val == "" {
		log.Fatalf("AGENTNEO_%s must be configured\n", name)
	}
}

func init() {
	err := envconfig.Process("AGENTNEO", config)
	if err != nil {
		log.Fatalln("Error reading configuration from environment:", err)
	}

	if config.TypingDelay == 0 {
		config.TypingDelay = 15
	}
	if config.TypingDelay < 0 || config.RequestTimeout < 0 {
		log.Fatalln("AGENTNEO_TYPINGDELAY and AGENTNEO_REQUESTTIMEOUT must not be negative")
	}

	checkEmpty(config.BackendAddress, "BACKENDADDRESS")

	switch config.AuthMethod {
	case "":
	case auth.MethodAuth0:
		checkEmpty(config.AuthDomain, "AUTHDOMAIN")
		checkEmpty(config.AuthClientID, "AUTHCLIENTID")
		checkEmpty(config.AuthCallback, "AUTHCALLBACK")
		checkEmpty(config.AuthLogoutURL, "AUTHLOGOUTURL")
	default:
		log.Fatalf("AGENTNEO_AUTHMETHOD must be empty or %q\n", auth.MethodAuth0)
	}

	if config.StorageDriver == "" {
		config.StorageDriver = "memory"
	}
	switch config.StorageDriver {
	case "memory":
	case "mysql":
		checkEmpty(config.StorageDSN, "STORAGEDSN")
	default:
		log.Fatalln("AGENTNEO_STORAGEDRIVER must be \"memory\" or \"mysql\"")
	}

	if config.StorageKey != "" {
		if _, err := storage.ParseKey(config.StorageKey); err != nil {
			log.Fatalln("Could not parse AGENTNEO_STORAGEKEY:", err)
		}
	}

	checkEmpty(config.ListenAddr, "LISTENADDR")
}
