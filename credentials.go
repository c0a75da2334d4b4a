package pgwire

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jackc/pgpassfile"
	"github.com/jackc/pgservicefile"
)

// ResolvePassword fills in endpoint.Password from a .pgpass file when the
// caller did not supply one directly, matching libpq's own fallback. path
// defaults to ~/.pgpass when empty.
func ResolvePassword(endpoint Endpoint, path string) (Endpoint, error) {
	if endpoint.Password != "" {
		return endpoint, nil
	}

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return endpoint, newError(KindProtocol, fmt.Errorf("pgwire: cannot resolve home directory for .pgpass: %w", err))
		}
		path = filepath.Join(home, ".pgpass")
	}

	passfile, err := pgpassfile.ReadPassfile(path)
	if err != nil {
		return endpoint, newError(KindProtocol, fmt.Errorf("pgwire: reading pgpass file: %w", err))
	}

	password, found := passfile.FindPassword(endpoint.Host, strconv.Itoa(int(endpoint.Port)), endpoint.Database, endpoint.Username)
	if !found {
		return endpoint, newError(KindAuth, fmt.Errorf("pgwire: no matching entry for %s@%s/%s in %s", endpoint.Username, endpoint.Host, endpoint.Database, path))
	}

	endpoint.Password = password
	return endpoint, nil
}

// ResolveFromServiceFile fills in any zero-valued Endpoint field from a
// named section of a pg_service.conf file, matching libpq's `service=`
// connection option. path defaults to ~/.pg_service.conf when empty.
func ResolveFromServiceFile(endpoint Endpoint, service, path string) (Endpoint, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return endpoint, newError(KindProtocol, fmt.Errorf("pgwire: cannot resolve home directory for pg_service.conf: %w", err))
		}
		path = filepath.Join(home, ".pg_service.conf")
	}

	servicefile, err := pgservicefile.ReadServicefile(path)
	if err != nil {
		return endpoint, newError(KindProtocol, fmt.Errorf("pgwire: reading service file: %w", err))
	}

	section, err := servicefile.GetService(service)
	if err != nil {
		return endpoint, newError(KindProtocol, fmt.Errorf("pgwire: service %q not found in %s: %w", service, path, err))
	}

	if endpoint.Host == "" {
		endpoint.Host = section.Settings["host"]
	}
	if endpoint.Database == "" {
		endpoint.Database = section.Settings["dbname"]
	}
	if endpoint.Username == "" {
		endpoint.Username = section.Settings["user"]
	}
	if endpoint.Port == 0 {
		if port, err := strconv.Atoi(section.Settings["port"]); err == nil {
			endpoint.Port = uint16(port)
		}
	}

	return endpoint, nil
}
