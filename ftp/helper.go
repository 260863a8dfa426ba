package ftp

import (
	"fmt"
	"io"
	"net/http"
)

// PublicIpUrl is the url to get the public ip of the server
const PublicIpUrl = "https://api.ipify.org"

// GetServerPublicIP asks ipify for the server's public IPv4, for use as
// the PASV masquerade address when none is configured.
func GetServerPublicIP() (string, error) {
	res, err := http.Get(PublicIpUrl)
	if err != nil {
		return "", fmt.Errorf("error getting public ip: %w", err)
	}
	defer res.Body.Close()
	ip, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("error reading public ip: %w", err)
	}
	return string(ip), nil
}
