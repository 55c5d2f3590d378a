// Package platform isolates operating-system specific file metadata.
package platform
