// Package daemon wires the g19d runtime together.
// It owns the device, the applet scheduler, the key router, the ambient
// colour socket and the notification overlay, and tears them down in
// order on shutdown.
package daemon
