package identity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/fileio"
	folderutil "github.com/projectdiscovery/utils/folder"
)

// DefaultVendorDBURL is the IEEE MA-L registry
const DefaultVendorDBURL = "https://standards-oui.ieee.org/oui/oui.csv"

// maxVendorDBSize bounds the download, the registry is a few megabytes
const maxVendorDBSize = 64 << 20

// DefaultVendorDBPath returns the location of the vendor database in the
// user's home directory
func DefaultVendorDBPath() string {
	return filepath.Join(folderutil.HomeDirOrDefault("."), ".lanwatch", "oui.csv")
}

// UpdateVendorDB downloads the vendor registry from url, checks that it
// parses and atomically replaces the file at path. It returns the number of
// prefixes in the new database.
func UpdateVendorDB(ctx context.Context, url, path string) (int, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 2 * time.Minute
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "lanwatch")

	gologger.Verbose().Msgf("downloading vendor database from %s", url)
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download vendor database: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVendorDBSize))
	if err != nil {
		return 0, fmt.Errorf("failed to read vendor database: %w", err)
	}

	prefixes, err := ParseVendorDB(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("downloaded vendor database is invalid: %w", err)
	}

	if err := fileio.WriteAtomic(path, data); err != nil {
		return 0, fmt.Errorf("failed to write vendor database: %w", err)
	}
	return len(prefixes), nil
}
