// Package internaldefs holds the shared counter definitions used by the
// metrics exporters. It exists so exporter packages agree on instrument
// names without importing each other.
package internaldefs
