package tuner

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/plexiptv/tuner/internal/catalog"
)

// HDHomeRun identity constants. Clients key on the Silicondust manufacturer
// string to recognize the device as a network tuner.
const (
	deviceManufacturer    = "Silicondust"
	deviceModelName       = "Plex-IPTV"
	deviceModelNumber     = "Plex-IPTV"
	deviceFirmwareName    = "plex-iptv-1.0"
	deviceFirmwareVersion = "1.0"
	deviceID              = "45654789541"
	deviceSerialNumber    = "0123456789"
	deviceAuth            = "user123"
)

// Device serves HDHomeRun-compatible discovery and lineup endpoints. The
// catalog is read per request so refreshes show up without restart.
type Device struct {
	FriendlyName string
	TunerCount   int
	Catalog      func() *catalog.Catalog
}

func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/device.xml":
		d.serveDeviceXML(w, r)
	case "/discover.json":
		d.serveDiscover(w, r)
	case "/lineup.json":
		d.serveLineup(w, r)
	case "/lineup_status.json":
		d.serveLineupStatus(w)
	case "/lineup.post":
		d.serveLineupPost(w)
	default:
		http.NotFound(w, r)
	}
}

// baseURL reconstructs the URL clients used to reach us, so lineup and
// stream URLs stay valid behind any interface or port mapping.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (d *Device) serveDeviceXML(w http.ResponseWriter, r *http.Request) {
	deviceXML := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <URLBase>%s</URLBase>
  <specVersion>
    <major>1</major>
    <minor>0</minor>
  </specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaServer:1</deviceType>
    <friendlyName>%s</friendlyName>
    <manufacturer>%s</manufacturer>
    <modelName>%s</modelName>
    <modelNumber>%s</modelNumber>
    <serialNumber>%s</serialNumber>
    <UDN>uuid:%s</UDN>
  </device>
</root>`, baseURL(r), d.FriendlyName, deviceManufacturer, deviceModelName, deviceModelNumber, deviceSerialNumber, deviceID)
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(deviceXML))
}

func (d *Device) serveDiscover(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	out := map[string]interface{}{
		"FriendlyName":    d.FriendlyName,
		"Manufacturer":    deviceManufacturer,
		"ModelNumber":     deviceModelName,
		"FirmwareName":    deviceFirmwareName,
		"TunerCount":      d.TunerCount,
		"FirmwareVersion": deviceFirmwareVersion,
		"DeviceID":        deviceID,
		"DeviceAuth":      deviceAuth,
		"BaseURL":         base,
		"LineupURL":       base + "/lineup.json",
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (d *Device) serveLineup(w http.ResponseWriter, r *http.Request) {
	cat := d.Catalog()
	if cat == nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no channel catalog built yet: run the probe command first\n"))
		return
	}
	base := baseURL(r)
	out := make([]map[string]interface{}, 0, len(cat.Results))
	for _, result := range cat.Successful() {
		hd := 0
		if result.Metadata != nil && result.Metadata.HD() {
			hd = 1
		}
		out = append(out, map[string]interface{}{
			"GuideName":   result.ChannelName,
			"HD":          hd,
			"GuideNumber": strconv.Itoa(result.ChannelNumber),
			"URL":         base + "/stream?url=" + url.QueryEscape(result.Track.URL),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (d *Device) serveLineupStatus(w http.ResponseWriter) {
	out := map[string]interface{}{
		"ScanInProgress": 0,
		"ScanPossible":   1,
		"Source":         "Cable",
		"SourceList":     []string{"Cable"},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (d *Device) serveLineupPost(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte("{}"))
}
