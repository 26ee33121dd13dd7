// Package config stores appliance profiles and retry preferences in a YAML
// file under the user's configuration directory (see GetConfigDir), or at
// APPLIANCECTL_CONFIG when set.
//
// Passwords are never written. The CLI takes them from --password,
// APPLIANCECTL_PASSWORD or a terminal prompt.
//
//	version: 1
//	default_profile: lab
//	profiles:
//	  lab:
//	    host: 10.0.0.5
//	    username: admin
//	    insecure: true
//	preferences:
//	  retry:
//	    ready:
//	      max_attempts: 90
//	      delay: 10s
//	    request:
//	      max_attempts: 3
//	      delay: 300ms
//	    immediate_fail: false
//
// Writes are atomic and the file is created with mode 0600.
package config
