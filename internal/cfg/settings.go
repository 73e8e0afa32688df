package cfg

import (
	"net"
	"strconv"
	"strings"

	"cipher-scan/internal/common"
)

// Addr returns the listen address for the HTTP server.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// IsDevelopment reports whether ENVIRONMENT is development.
func (s *Settings) IsDevelopment() bool {
	return strings.EqualFold(s.Environment, common.EnvironmentDevelopment)
}

// AllowedOrigins returns the CORS allow list. Development allows any origin.
func (s *Settings) AllowedOrigins() []string {
	if s.IsDevelopment() {
		return []string{"*"}
	}
	return s.CORSOrigins
}

// StorageEnabled reports whether predictions are recorded to disk.
func (s *Settings) StorageEnabled() bool {
	return s.DataPath != ""
}
