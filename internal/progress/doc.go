// Package progress tracks upload task progress across concurrent workers.
package progress
