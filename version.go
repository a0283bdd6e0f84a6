// Package entractl is the root of the Entra ID administration toolkit.
package entractl

// Version is the released version of entractl.
const Version = "0.4.0"
