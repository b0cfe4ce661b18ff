// Package export renders prediction records and dataset summaries as
// JSON, CSV, YAML and XLSX.
package export
