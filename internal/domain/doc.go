// Package domain contains the core concepts of the HTML-to-image service:
// conversion requests and results, element geometry and the error taxonomy.
// Keep this package free of transport (HTTP) and infrastructure (browser, Redis) concerns.
package domain
