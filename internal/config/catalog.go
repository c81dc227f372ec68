package config

// Bootstrap catalog used when the config file has no catalog block.
// Live prices set by the operator take precedence over these.
var (
	defaultAccountTypes = []Option{
		{Key: "1m", Label: "1 month (30 days)", Price: 3000},
		{Key: "3m", Label: "3 months (90 days)", Price: 7500},
		{Key: "6m", Label: "6 months (180 days)", Price: 12000},
		{Key: "12m", Label: "1 year (365 days)", Price: 20000},
		{Key: "v2ray", Label: "Premium account (V2Ray)", Price: 5000},
		{Key: "proxy", Label: "Access point (Proxy)", Price: 1000},
	}

	defaultServiceTypes = []Option{
		{Key: "openvpn", Label: "OpenVPN"},
		{Key: "v2ray", Label: "V2Ray"},
		{Key: "proxy", Label: "Telegram Proxy"},
	}

	defaultDeviceTypes = []Option{
		{Key: "android", Label: "Android", Links: []string{
			"https://play.google.com/store/apps/details?id=net.openvpn.openvpn",
			"https://play.google.com/store/apps/details?id=com.v2ray.ang",
		}},
		{Key: "ios", Label: "iOS", Links: []string{
			"https://apps.apple.com/us/app/openvpn-connect/id590379981",
			"https://apps.apple.com/app/id6448898396",
		}},
		{Key: "windows", Label: "Windows", Links: []string{
			"https://openvpn.net/client-connect-vpn-for-windows/",
			"https://github.com/2dust/v2rayN/releases",
		}},
	}
)

func withCatalogDefaults(c Catalog) Catalog {
	if len(c.AccountTypes) == 0 {
		c.AccountTypes = append([]Option(nil), defaultAccountTypes...)
	}
	if len(c.ServiceTypes) == 0 {
		c.ServiceTypes = append([]Option(nil), defaultServiceTypes...)
	}
	if len(c.DeviceTypes) == 0 {
		c.DeviceTypes = append([]Option(nil), defaultDeviceTypes...)
	}
	for _, list := range [][]Option{c.AccountTypes, c.ServiceTypes, c.DeviceTypes} {
		for i := range list {
			if list[i].Label == "" {
				list[i].Label = list[i].Key
			}
		}
	}
	return c
}

// DefaultCatalog returns a copy of the bootstrap catalog.
func DefaultCatalog() Catalog { return withCatalogDefaults(Catalog{}) }
