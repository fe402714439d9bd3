package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		releaseVersionPolicy(),
		secretNamespacePolicy(),
		commandInstallCheckPolicy(),
		resourceNamingPolicy(),
	}
}

// releaseVersionPolicy requires releases to pin a chart version.
func releaseVersionPolicy() Policy {
	return Policy{
		Name:        "release-version",
		Description: "Releases must pin a chart version",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"release", "reproducibility"},
		Rego: `package provisioner

import rego.v1

deny contains violation if {
	some resource in input.resources
	resource.type == "Release"
	not resource.release.version
	violation := {
		"resource": resource.name,
		"message": sprintf("release %s of chart %s must pin a chart version", [resource.release.name, resource.release.chart]),
	}
}
`,
	}
}

// secretNamespacePolicy keeps secrets out of the default namespace.
func secretNamespacePolicy() Policy {
	return Policy{
		Name:        "secret-namespace",
		Description: "Secrets must target an explicit namespace",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"secret", "security"},
		Rego: `package provisioner

import rego.v1

deny contains violation if {
	some resource in input.resources
	resource.type == "Secret"
	object.get(resource.secret, "namespace", "") in {"", "default"}
	violation := {
		"resource": resource.name,
		"message": sprintf("secret %s must target an explicit namespace other than default", [resource.secret.name]),
	}
}
`,
	}
}

// commandInstallCheckPolicy warns about commands that rerun on every apply.
func commandInstallCheckPolicy() Policy {
	return Policy{
		Name:        "command-install-check",
		Description: "Commands should declare an install check",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"command", "idempotency"},
		Rego: `package provisioner

import rego.v1

deny contains violation if {
	some resource in input.resources
	resource.type == "Command"
	not resource.command.installCheck
	violation := {
		"resource": resource.name,
		"message": "command has no installCheck and will run on every apply",
	}
}
`,
	}
}

// resourceNamingPolicy recommends names that are valid DNS labels.
func resourceNamingPolicy() Policy {
	return Policy{
		Name:        "resource-naming",
		Description: "Resource names should be lowercase DNS labels",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package provisioner

import rego.v1

deny contains violation if {
	some resource in input.resources
	not regex.match("^[a-z0-9]([-a-z0-9]*[a-z0-9])?$", resource.name)
	violation := {
		"resource": resource.name,
		"message": sprintf("name '%s' should contain only lowercase letters, numbers and hyphens", [resource.name]),
	}
}

deny contains violation if {
	some resource in input.resources
	count(resource.name) > 63
	violation := {
		"resource": resource.name,
		"message": sprintf("name '%s' should be at most 63 characters long", [resource.name]),
	}
}
`,
	}
}
