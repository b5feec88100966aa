package api

// Provider holds the IMAP connection preset for a well-known mail service.
// Accounts created with a preset provider only need an address and an app
// password.
type Provider struct {
	Name         string `json:"name"`
	IMAPHost     string `json:"imap_host,omitempty"`
	IMAPPort     int    `json:"imap_port,omitempty"`
	IMAPSecurity string `json:"imap_security,omitempty"`
}

// Providers maps provider identifiers to their connection presets. The
// "custom" provider carries no preset; the request must supply the endpoint.
var Providers = map[string]Provider{
	"gmail": {
		Name:         "Gmail",
		IMAPHost:     "imap.gmail.com",
		IMAPPort:     993,
		IMAPSecurity: "SSL/TLS",
	},
	"outlook": {
		Name:         "Outlook/Hotmail",
		IMAPHost:     "outlook.office365.com",
		IMAPPort:     993,
		IMAPSecurity: "SSL/TLS",
	},
	"yahoo": {
		Name:         "Yahoo Mail",
		IMAPHost:     "imap.mail.yahoo.com",
		IMAPPort:     993,
		IMAPSecurity: "SSL/TLS",
	},
	"custom": {
		Name: "Custom IMAP",
	},
}
