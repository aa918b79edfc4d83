// Package command interprets the JSON commands received on the control topic.
package command
