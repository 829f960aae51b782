package release

import "fmt"

func releasedText(username, title, episode string, withLinks bool) string {
	greet := "Hello!"
	if username != "" {
		greet = fmt.Sprintf("Hello @%s!", username)
	}
	msg := fmt.Sprintf("%s\n%s episode %s has released!", greet, title, episode)
	if withLinks {
		msg += "\nLinks:"
	}
	return msg
}

func anomalyText(title string) string {
	return fmt.Sprintf("%s was supposed to be out but isn't! Please check the site for further information!", title)
}
