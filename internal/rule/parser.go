/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package rule

import (
	"fmt"
	"strconv"
	"strings"
)

type Parser struct {
	lexer   *Lexer
	current Token
	peek    Token
}

func NewParser(input string) (*Parser, error) {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to initialize current and peek
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse parses one rule in text form, e.g.
//
//	block outbound name web app "/usr/bin/curl" remote address 10.0.0.0/8 remote port 80-90 protocol tcp
func Parse(input string) (*Rule, error) {
	p, err := NewParser(input)
	if err != nil {
		return nil, err
	}
	return p.ParseRule()
}

// ParseAll parses one rule per line and stops at the first malformed one.
func ParseAll(lines []string) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(lines))
	for i, line := range lines {
		r, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (p *Parser) nextToken() error {
	p.current = p.peek
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

// ParseRule parses: action [direction] { clause }
func (p *Parser) ParseRule() (*Rule, error) {
	var params Params
	var name string

	switch p.current.Type {
	case TokenAllow:
		params.Action = ActionAllow
	case TokenBlock:
		params.Action = ActionBlock
	default:
		return nil, fmt.Errorf("expected 'allow' or 'block', got '%s' at position %d",
			p.current.Value, p.current.Pos)
	}
	if err := p.nextToken(); err != nil {
		return nil, err
	}

	params.Direction = DirectionBoth
	switch p.current.Type {
	case TokenInbound, TokenOutbound, TokenBoth:
		direction, err := ParseDirection(p.current.Value)
		if err != nil {
			return nil, err
		}
		params.Direction = direction
		if err := p.nextToken(); err != nil {
			return nil, err
		}
	}

	for p.current.Type != TokenEOF {
		var err error
		switch p.current.Type {
		case TokenName:
			name, err = p.parseWord()
		case TokenApp:
			params.AppPath, err = p.parseQuoted()
		case TokenDescription:
			params.Description, err = p.parseQuoted()
		case TokenLocal, TokenRemote:
			err = p.parseSideClause(&params)
		case TokenProtocol:
			params.Protocol, err = p.parseProtocol()
		case TokenPriority:
			var priority uint32
			priority, err = p.parsePriority()
			params.Priority = &priority
		default:
			return nil, fmt.Errorf("expected clause keyword, got '%s' at position %d",
				p.current.Value, p.current.Pos)
		}
		if err != nil {
			return nil, err
		}
	}

	return NewWithParams(name, params), nil
}

// parseWord parses: keyword (IDENT | STRING)
func (p *Parser) parseWord() (string, error) {
	if err := p.nextToken(); err != nil {
		return "", err
	}
	if p.current.Type != TokenIdent && p.current.Type != TokenString {
		return "", fmt.Errorf("expected identifier or string, got '%s' at position %d",
			p.current.Value, p.current.Pos)
	}
	value := p.current.Value
	return value, p.nextToken()
}

// parseQuoted parses: keyword STRING
func (p *Parser) parseQuoted() (string, error) {
	keyword := p.current.Value
	if err := p.nextToken(); err != nil {
		return "", err
	}
	if p.current.Type != TokenString {
		return "", fmt.Errorf("expected quoted string after '%s', got '%s' at position %d",
			keyword, p.current.Value, p.current.Pos)
	}
	value := p.current.Value
	return value, p.nextToken()
}

// parseSideClause parses: ("local" | "remote") ("address" ADDRESS | "port" PORT_SPEC)
func (p *Parser) parseSideClause(params *Params) error {
	local := p.current.Type == TokenLocal
	side := p.current.Value
	if err := p.nextToken(); err != nil {
		return err
	}

	switch p.current.Type {
	case TokenAddress:
		if err := p.nextToken(); err != nil {
			return err
		}
		addr, err := p.parseAddress()
		if err != nil {
			return err
		}
		if local {
			params.Local = addr
		} else {
			params.Remote = addr
		}
	case TokenPort:
		if err := p.nextToken(); err != nil {
			return err
		}
		port, pr, err := p.parsePortSpec()
		if err != nil {
			return err
		}
		switch {
		case local && pr.IsSet():
			params.LocalPortRange = pr
		case local:
			params.LocalPort = port
		case pr.IsSet():
			params.RemotePortRange = pr
		default:
			params.RemotePort = port
		}
	default:
		return fmt.Errorf("expected 'address' or 'port' after '%s', got '%s' at position %d",
			side, p.current.Value, p.current.Pos)
	}

	return nil
}

// parseAddress parses an IP address or CIDR range, validation is left to
// Rule.Validate.
func (p *Parser) parseAddress() (string, error) {
	var parts []string

	if p.current.Type == TokenString {
		value := p.current.Value
		return value, p.nextToken()
	}

	for {
		switch p.current.Type {
		case TokenNumber, TokenIdent, TokenDot, TokenColon, TokenSlash:
			parts = append(parts, p.current.Value)
			if err := p.nextToken(); err != nil {
				return "", err
			}
		default:
			if len(parts) == 0 {
				return "", fmt.Errorf("expected IP address at position %d", p.current.Pos)
			}
			return strings.Join(parts, ""), nil
		}
	}
}

// parsePortSpec parses: NUMBER | NUMBER "-" NUMBER
func (p *Parser) parsePortSpec() (uint16, PortRange, error) {
	start, err := p.parsePort()
	if err != nil {
		return 0, PortRange{}, err
	}

	if p.current.Type != TokenDash {
		if start == 0 {
			return 0, PortRange{}, fmt.Errorf("port 0 cannot be matched at position %d", p.current.Pos)
		}
		return start, PortRange{}, nil
	}

	if err := p.nextToken(); err != nil {
		return 0, PortRange{}, err
	}
	end, err := p.parsePort()
	if err != nil {
		return 0, PortRange{}, err
	}
	if end < start || end == 0 {
		return 0, PortRange{}, fmt.Errorf("invalid port range %d-%d at position %d", start, end, p.current.Pos)
	}

	return 0, PortRange{Start: start, End: end}, nil
}

func (p *Parser) parsePort() (uint16, error) {
	if p.current.Type != TokenNumber {
		return 0, fmt.Errorf("expected port number, got '%s' at position %d",
			p.current.Value, p.current.Pos)
	}
	port, err := strconv.ParseUint(p.current.Value, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port number '%s' at position %d",
			p.current.Value, p.current.Pos)
	}
	return uint16(port), p.nextToken()
}

// parseProtocol parses: "protocol" ("tcp" | "udp")
func (p *Parser) parseProtocol() (Protocol, error) {
	if err := p.nextToken(); err != nil {
		return ProtocolAny, err
	}
	if p.current.Type != TokenIdent {
		return ProtocolAny, fmt.Errorf("expected protocol, got '%s' at position %d",
			p.current.Value, p.current.Pos)
	}
	protocol, err := ParseProtocol(p.current.Value)
	if err != nil {
		return ProtocolAny, fmt.Errorf("invalid protocol '%s' at position %d, valid protocols are: TCP, UDP",
			p.current.Value, p.current.Pos)
	}
	return protocol, p.nextToken()
}

// parsePriority parses: "priority" NUMBER
func (p *Parser) parsePriority() (uint32, error) {
	if err := p.nextToken(); err != nil {
		return 0, err
	}
	if p.current.Type != TokenNumber {
		return 0, fmt.Errorf("expected priority, got '%s' at position %d",
			p.current.Value, p.current.Pos)
	}
	priority, err := strconv.ParseUint(p.current.Value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid priority '%s' at position %d",
			p.current.Value, p.current.Pos)
	}
	return uint32(priority), p.nextToken()
}
