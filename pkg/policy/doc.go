// Package policy gates runs with Open Policy Agent Rego policies.
//
// Every policy is a Rego module whose deny set is evaluated against
//
//	{"action": "install-or-upgrade", "resources": [<resource specs>]}
//
// Members of the deny set are either message strings or objects:
//
//	package provisioner
//
//	import rego.v1
//
//	deny contains violation if {
//		some resource in input.resources
//		resource.type == "Release"
//		not resource.release.version
//		violation := {
//			"resource": resource.name,
//			"message": "release must pin a chart version",
//			"severity": "error",
//		}
//	}
//
// A violation without a severity takes the default severity of its policy.
// Violations of severity error make Result.Allowed false; Result.Err turns
// them into a configuration error that stops apply before any worker starts.
//
// The built-in policies require releases to pin a chart version and
// secrets to target an explicit namespace, and warn about commands without
// an install check and names that are not DNS labels. Extra policies are
// loaded from .rego files, whose "# severity:" header comment sets their
// default severity, or from JSON policy definitions.
package policy
