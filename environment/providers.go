package environment

// Provider identifiers reported by CI. The strings are part of the
// User-Agent and must not change.
const (
	ProviderTravis     = "travis"
	ProviderJenkinsPRB = "jenkins-prb"
	ProviderJenkins    = "jenkins"
	ProviderCircle     = "circle"
	ProviderCodeship   = "codeship"
	ProviderDrone      = "drone"
	ProviderSemaphore  = "semaphore"
	ProviderBuildkite  = "buildkite"
	ProviderHeroku     = "heroku"
	ProviderGitLab     = "gitlab"
	ProviderAzure      = "azure"
	ProviderAppVeyor   = "appveyor"
	ProviderProbo      = "probo"
	ProviderBitbucket  = "bitbucket"
	ProviderGitHub     = "github"
	ProviderNetlify    = "netlify"
	ProviderUnknown    = "CI/unknown"
)

// signature is one entry of the detection table.
type signature struct {
	provider string
	match    func(env map[string]string) bool
}

// signatures is evaluated top to bottom; the first match fixes the provider.
// The generic CI entry must stay last.
var signatures = []signature{
	{ProviderTravis, isSet("TRAVIS_BUILD_ID")},
	{ProviderJenkinsPRB, func(env map[string]string) bool {
		return env["JENKINS_URL"] != "" && env["ghprbPullId"] != ""
	}},
	{ProviderJenkins, isSet("JENKINS_URL")},
	{ProviderCircle, isSet("CIRCLECI")},
	{ProviderCodeship, equals("CI_NAME", "codeship")},
	{ProviderDrone, equals("DRONE", "true")},
	{ProviderSemaphore, equals("SEMAPHORE", "true")},
	{ProviderBuildkite, equals("BUILDKITE", "true")},
	{ProviderHeroku, isSet("HEROKU_TEST_RUN_ID")},
	{ProviderGitLab, equals("GITLAB_CI", "true")},
	{ProviderAzure, equals("TF_BUILD", "True")},
	{ProviderAppVeyor, func(env map[string]string) bool {
		return env["APPVEYOR"] == "True" || env["APPVEYOR"] == "true"
	}},
	{ProviderProbo, equals("PROBO_ENVIRONMENT", "TRUE")},
	{ProviderBitbucket, isSet("BITBUCKET_BUILD_NUMBER")},
	{ProviderGitHub, equals("GITHUB_ACTIONS", "true")},
	{ProviderNetlify, equals("NETLIFY", "true")},
	{ProviderUnknown, isSet("CI")},
}

// Providers returns the provider identifiers in detection order.
func Providers() []string {
	out := make([]string, 0, len(signatures))
	for _, s := range signatures {
		out = append(out, s.provider)
	}
	return out
}

// detect returns the first provider whose signature matches env, or "".
func detect(env map[string]string) string {
	for _, s := range signatures {
		if s.match(env) {
			return s.provider
		}
	}
	return ""
}

func isSet(key string) func(map[string]string) bool {
	return func(env map[string]string) bool { return env[key] != "" }
}

func equals(key, value string) func(map[string]string) bool {
	return func(env map[string]string) bool { return env[key] == value }
}
