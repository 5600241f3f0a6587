package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
)

const productName = "TruePortMe"

type MailTemplates struct {
	frontendURL string
}

func NewMailTemplates(frontendURL string) *MailTemplates {
	return &MailTemplates{frontendURL: strings.TrimSuffix(frontendURL, "/")}
}

func (t *MailTemplates) link(path string) string {
	return t.frontendURL + path
}

func (t *MailTemplates) Invite(invite *model.VerifierInvite, token, itemTitle, inviterName string, itemType model.ItemType) Mail {
	previewURL := t.link("/verifier-invite/preview/" + url.PathEscape(token))
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", displayName(invite.Name, invite.Email))
	fmt.Fprintf(&b, "%s asked you to verify the %s entry \"%s\" on %s.\n", inviterName, strings.ToLower(string(itemType)), itemTitle, productName)
	if invite.Message != "" {
		fmt.Fprintf(&b, "\nMessage from %s:\n%s\n", inviterName, invite.Message)
	}
	fmt.Fprintf(&b, "\nReview the request here:\n%s\n\n", previewURL)
	b.WriteString("The link works once and expires. If you did not expect this email you can report it from the same page.\n")
	return Mail{
		To:      invite.Email,
		Subject: "Verification Request: " + itemTitle,
		Body:    b.String(),
	}
}

func (t *MailTemplates) Decision(owner *model.User, itemTitle string, status model.VerificationStatus, verifierEmail, comment string) Mail {
	statusText := "Approved"
	if status == model.VerificationRejected {
		statusText = "Rejected"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", displayName(owner.Name, owner.Email))
	fmt.Fprintf(&b, "Your entry \"%s\" was %s by %s.\n", itemTitle, strings.ToLower(statusText), verifierEmail)
	if comment != "" {
		fmt.Fprintf(&b, "\nComment:\n%s\n", comment)
	}
	fmt.Fprintf(&b, "\nView your portfolio: %s\n", t.link("/portfolio"))
	return Mail{
		To:      owner.Email,
		Subject: fmt.Sprintf("Verification %s: %s", statusText, itemTitle),
		Body:    b.String(),
	}
}

func (t *MailTemplates) BGRequest(bg *model.BackgroundVerification) Mail {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", displayName(bg.StudentName, bg.StudentEmail))
	fmt.Fprintf(&b, "%s from %s started a background verification and asks for %d referee contact(s).\n",
		displayName(bg.VerifierName, bg.VerifierEmail), bg.VerifierInstitute, bg.RefereeContactsRequested)
	if bg.Notes != "" {
		fmt.Fprintf(&b, "\nNotes:\n%s\n", bg.Notes)
	}
	fmt.Fprintf(&b, "\nSubmit your referees: %s\n", t.link("/bg-verification/requests/"+bg.ID))
	return Mail{
		To:      bg.StudentEmail,
		Subject: "Background Verification Request from " + displayName(bg.VerifierName, bg.VerifierEmail),
		Body:    b.String(),
	}
}

func (t *MailTemplates) RefereeMagicLink(contact model.RefereeContact, bg *model.BackgroundVerification, magicToken string) Mail {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", displayName(contact.Name, contact.Email))
	fmt.Fprintf(&b, "%s named you as a referee. %s would like to talk with you on %s.\n",
		displayName(bg.StudentName, bg.StudentEmail), displayName(bg.VerifierName, bg.VerifierEmail), productName)
	fmt.Fprintf(&b, "\nSign in with this one-time link and set a password:\n%s\n",
		t.link("/auth/magic-link/"+url.PathEscape(magicToken)))
	return Mail{
		To:      contact.Email,
		Subject: "Sign in to " + productName + " - Referee Request",
		Body:    b.String(),
	}
}

func (t *MailTemplates) RefereeChat(contact model.RefereeContact, bg *model.BackgroundVerification, chatID string) Mail {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", displayName(contact.Name, contact.Email))
	fmt.Fprintf(&b, "%s named you as a referee and you have been added to a chat with %s.\n",
		displayName(bg.StudentName, bg.StudentEmail), displayName(bg.VerifierName, bg.VerifierEmail))
	fmt.Fprintf(&b, "\nOpen the chat: %s\n", t.link("/bg-chat/"+chatID))
	return Mail{
		To:      contact.Email,
		Subject: "You've been added as a referee on " + productName,
		Body:    b.String(),
	}
}

func (t *MailTemplates) VerifierRequest(verifier, student *model.User, record *model.Verification, itemTitle string) Mail {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", displayName(verifier.Name, verifier.Email))
	fmt.Fprintf(&b, "%s asked you to verify the %s entry \"%s\".\n",
		displayName(student.Name, student.Email), strings.ToLower(string(record.ItemType)), itemTitle)
	fmt.Fprintf(&b, "\nReview it from your dashboard: %s\n", t.link("/verifier/verifications/"+record.ID))
	return Mail{
		To:      verifier.Email,
		Subject: "Verification Request: " + itemTitle,
		Body:    b.String(),
	}
}
