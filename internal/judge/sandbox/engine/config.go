package engine

const (
	DriverDocker    = "docker"
	DriverDockerCLI = "docker-cli"

	defaultOutputLimitBytes int64 = 8 << 20
	defaultPIDsLimit        int64 = 256
)

// Config controls sandbox engine behavior.
type Config struct {
	// Driver is "docker" (Engine API) or "docker-cli" (docker run).
	Driver string `yaml:"driver"`
	// DockerHost overrides DOCKER_HOST for the API driver.
	DockerHost string `yaml:"dockerHost"`
	// DockerBinary is the CLI used by the docker-cli driver.
	DockerBinary string `yaml:"dockerBinary"`
	// OutputLimitBytes caps captured stdout and stderr each.
	OutputLimitBytes int64 `yaml:"outputLimitBytes"`
	// PIDsLimit caps processes inside one container.
	PIDsLimit int64 `yaml:"pidsLimit"`
	// PullMissingImages pulls an image when container creation reports it missing.
	PullMissingImages bool `yaml:"pullMissingImages"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverDocker
	}
	if c.DockerBinary == "" {
		c.DockerBinary = "docker"
	}
	if c.OutputLimitBytes <= 0 {
		c.OutputLimitBytes = defaultOutputLimitBytes
	}
	if c.PIDsLimit <= 0 {
		c.PIDsLimit = defaultPIDsLimit
	}
}
