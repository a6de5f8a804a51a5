package redisconn

import (
	"fmt"

	"github.com/robinbryce/redquorum/environment"
	"github.com/robinbryce/redquorum/logger"
)

const (
	// MastersCountEnv gives the number N of independent Redis masters a
	// Redlock or NextId handle fans out to.
	MastersCountEnv   = "REDIS_MASTERS_COUNT"
	namespaceEnv      = "REDIS_KEY_NAMESPACE"
	masterAddrFmt     = "REDIS_MASTER%d_ADDRESS"
	masterDBFmt       = "REDIS_MASTER%d_DB"
	masterPasswordFmt = "REDIS_MASTER%d_PASSWORD_FILENAME"
)

// FromEnvOrFatal reads REDIS_MASTERS_COUNT independent single-node master
// endpoints from the environment, following the teacher's one-suffix-per-
// node numbering convention, panicking (the teacher's fatal idiom) if
// anything required is missing.
func FromEnvOrFatal(log logger.Logger) []Endpoint {
	if log == nil {
		log = logger.Sugar
	}

	count := environment.GetIntOrFatal(MastersCountEnv)
	namespace := environment.GetOrFatal(namespaceEnv)

	endpoints := make([]Endpoint, 0, count)
	for i := 0; i < count; i++ {
		ep := Endpoint{
			Namespace: namespace,
			Addr:      environment.GetOrFatal(fmt.Sprintf(masterAddrFmt, i)),
			DB:        environment.GetIntWithDefault(fmt.Sprintf(masterDBFmt, i), 0),
		}
		if passwordFile, err := environment.GetRequired(fmt.Sprintf(masterPasswordFmt, i)); err == nil {
			ep.Password = environment.ReadFileOrFatal(passwordFile)
		}
		log.InfoR("master", []string{ep.Addr})
		endpoints = append(endpoints, ep)
	}
	return endpoints
}
