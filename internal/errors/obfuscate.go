package errors

import "regexp"

// Mask replaces the password part of URLs
const Mask = "********"

// scheme://user:password@ where the user may hold a raw @ and the password
// runs up to the last @ before the path
var credentialsInURL = regexp.MustCompile(`([A-Za-z][A-Za-z0-9+.\-]*://)([^/:\s]+):([^/\s]+)@`)

// ObfuscateURLs masks the password of every URL embedded in s
func ObfuscateURLs(s string) string {
	return credentialsInURL.ReplaceAllString(s, "${1}${2}:"+Mask+"@")
}

// obfuscatedError masks credentials in the message of the wrapped error
type obfuscatedError struct {
	err error
}

func (e *obfuscatedError) Error() string {
	return ObfuscateURLs(e.err.Error())
}

func (e *obfuscatedError) Unwrap() error {
	return e.err
}

// Obfuscate wraps err so that its message never carries a URL password.
// errors.Is and errors.As still see the wrapped chain.
func Obfuscate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*obfuscatedError); ok {
		return err
	}
	return &obfuscatedError{err: err}
}
