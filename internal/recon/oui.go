package recon

import (
	"strings"

	"github.com/HerbHall/edgescan/pkg/models"
)

// cameraOUI maps OUI prefixes of IP camera and NVR vendors.
var cameraOUI = map[string]string{
	// Hikvision
	"A0:CF:5B": "Hikvision", "C0:56:E3": "Hikvision", "54:C4:15": "Hikvision",
	"44:19:B6": "Hikvision", "18:68:CB": "Hikvision", "BC:AD:28": "Hikvision",
	"28:57:BE": "Hikvision", "C4:2F:90": "Hikvision", "4C:BD:8F": "Hikvision",
	// Dahua
	"3C:EF:8C": "Dahua", "90:02:A9": "Dahua", "E0:50:8B": "Dahua",
	"4C:11:BF": "Dahua", "A0:BD:1D": "Dahua", "40:F4:FD": "Dahua",
	// Axis
	"00:40:8C": "Axis", "AC:CC:8E": "Axis", "B8:A4:4F": "Axis",
	// Hanwha / Samsung
	"00:09:18": "Hanwha", "00:16:6C": "Samsung", "00:1A:B6": "Samsung",
	"00:02:D1": "Vivotek", "00:22:F7": "Vivotek",
	"00:04:13": "Bosch", "00:07:5F": "Bosch",
	"00:80:F0": "Panasonic", "00:B0:C7": "Panasonic", "04:20:9A": "Panasonic",
	"00:04:1F": "Sony", "00:13:A9": "Sony",
	"24:24:05": "Uniview", "24:28:FD": "Uniview",
	"EC:71:DB": "Reolink",
	"9C:8E:CD": "Amcrest",
	"00:62:6E": "Foscam", "C0:F6:C2": "Foscam",
	// TP-Link (Tapo/VIGI) and Ubiquiti (UniFi Protect)
	"50:C7:BF": "TP-Link", "60:32:B1": "TP-Link",
	"24:A4:3C": "Ubiquiti", "80:2A:A8": "Ubiquiti", "FC:EC:DA": "Ubiquiti",
	"7C:D9:A0": "Turing",
}

// infrastructureOUI maps OUI prefixes of switch, router and AP vendors.
// Prefixes already present in cameraOUI are omitted so the tables stay
// disjoint.
var infrastructureOUI = map[string]string{
	"00:00:0C": "Cisco", "00:1B:D4": "Cisco", "00:26:CB": "Cisco",
	"74:83:C2": "Ubiquiti", "F0:9F:C2": "Ubiquiti",
	"00:14:6C": "Netgear", "00:1F:33": "Netgear",
	"00:0B:86": "Aruba", "24:DE:C6": "Aruba",
	"00:18:0A": "Meraki", "AC:17:C8": "Meraki",
}

// Vendor is the result of a successful OUI lookup.
type Vendor struct {
	Manufacturer string
	Category     models.DeviceType
}

// Classifier resolves a MAC address to a vendor using static OUI tables.
// It performs no I/O and is safe for concurrent use.
type Classifier struct {
	camera         map[string]string
	infrastructure map[string]string
}

// NewClassifier returns a Classifier over the built-in vendor tables.
func NewClassifier() *Classifier {
	return &Classifier{camera: cameraOUI, infrastructure: infrastructureOUI}
}

// Classify looks up the OUI of mac. The MAC may use colons, dashes, dots or
// no separator, in any case. ok is false when the prefix is in neither table
// or the input is not a MAC address.
func (c *Classifier) Classify(mac string) (v Vendor, ok bool) {
	prefix := normalizeMAC(mac)
	if prefix == "" {
		return Vendor{}, false
	}
	if m, found := c.camera[prefix]; found {
		return Vendor{Manufacturer: m, Category: models.DeviceTypeCamera}, true
	}
	if m, found := c.infrastructure[prefix]; found {
		return Vendor{Manufacturer: m, Category: models.DeviceTypeInfrastructure}, true
	}
	return Vendor{}, false
}

// normalizeMAC extracts the first 3 octets from a MAC address and returns
// them in uppercase colon-separated format (e.g., "AA:BB:CC"). Input that is
// not exactly six hex octets yields "".
func normalizeMAC(mac string) string {
	hex := stripMAC(mac)
	if hex == "" {
		return ""
	}
	return hex[0:2] + ":" + hex[2:4] + ":" + hex[4:6]
}

// CanonicalMAC formats mac as uppercase colon-separated octets, or returns
// "" if mac is malformed.
func CanonicalMAC(mac string) string {
	hex := stripMAC(mac)
	if hex == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String()
}

func stripMAC(mac string) string {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	mac = strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
	if len(mac) != 12 {
		return ""
	}
	for i := 0; i < len(mac); i++ {
		ch := mac[i]
		if (ch < '0' || ch > '9') && (ch < 'A' || ch > 'F') {
			return ""
		}
	}
	return mac
}
