package logs

import "time"

const defaultPublishWait = 2 * time.Second

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
