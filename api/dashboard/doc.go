// Package dashboard renders the dataset overview as an ECharts HTML page.
package dashboard
